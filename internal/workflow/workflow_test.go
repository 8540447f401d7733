package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itflow/internal/model"
)

func ptr(v int64) *int64 { return &v }

var (
	manager    = model.Actor{ID: 2, Username: "manager_user", Role: model.RoleManager}
	programmer = model.Actor{ID: 3, Username: "prog_user", Role: model.RoleProgrammer}
	client     = model.Actor{ID: 1, Username: "client_user", Role: model.RoleClient}
)

func order(status model.Status) *model.Order {
	return &model.Order{ID: 10, Status: status, ClientID: client.ID, ManagerID: ptr(manager.ID), DeveloperID: ptr(programmer.ID)}
}

func TestParse(t *testing.T) {
	for _, s := range Statuses() {
		got, err := Parse(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := Parse("review")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestAuthorize_HappyPath(t *testing.T) {
	steps := []struct {
		actor model.Actor
		from  model.Status
		to    model.Status
	}{
		{manager, model.StatusSubmitted, model.StatusAccepted},
		{programmer, model.StatusAccepted, model.StatusInProgress},
		{programmer, model.StatusInProgress, model.StatusClientReview},
		{manager, model.StatusClientReview, model.StatusAwaitingReview},
		{client, model.StatusAwaitingReview, model.StatusClientFix},
		{manager, model.StatusClientFix, model.StatusReworkRequested},
		{programmer, model.StatusReworkRequested, model.StatusInProgress},
		{client, model.StatusAwaitingReview, model.StatusDone},
		{manager, model.StatusAwaitingReview, model.StatusInProgress},
		{manager, model.StatusSubmitted, model.StatusRejected},
	}

	for _, s := range steps {
		t.Run(string(s.actor.Role)+"_"+string(s.from)+"_"+string(s.to), func(t *testing.T) {
			assert.NoError(t, Authorize(s.actor, order(s.from), s.to))
		})
	}
}

func TestAuthorize_Denied(t *testing.T) {
	tests := []struct {
		name  string
		actor model.Actor
		o     *model.Order
		to    model.Status
		want  error
	}{
		{"client cannot accept", client, order(model.StatusSubmitted), model.StatusAccepted, ErrTransitionDenied},
		{"programmer cannot finish", programmer, order(model.StatusInProgress), model.StatusDone, ErrTransitionDenied},
		{"manager cannot skip review", manager, order(model.StatusInProgress), model.StatusDone, ErrTransitionDenied},
		{"done is terminal for manager", manager, order(model.StatusDone), model.StatusInProgress, ErrTransitionDenied},
		{"unknown target", manager, order(model.StatusSubmitted), model.Status("review"), ErrUnknownStatus},
		{"programmer not assigned", model.Actor{ID: 99, Role: model.RoleProgrammer}, order(model.StatusAccepted), model.StatusInProgress, ErrNotAssigned},
		{"foreign client", model.Actor{ID: 42, Role: model.RoleClient}, order(model.StatusAwaitingReview), model.StatusDone, ErrNotOwner},
		{"manager same status", manager, order(model.StatusAccepted), model.StatusAccepted, ErrUnchanged},
		{"client same status", client, order(model.StatusAwaitingReview), model.StatusAwaitingReview, ErrTransitionDenied},
		{"unknown role", model.Actor{ID: 1, Role: "guest"}, order(model.StatusSubmitted), model.StatusAccepted, ErrTransitionDenied},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, Authorize(tc.actor, tc.o, tc.to), tc.want)
		})
	}
}

func TestAuthorize_UnassignedOrderBlocksProgrammer(t *testing.T) {
	o := order(model.StatusAccepted)
	o.DeveloperID = nil
	assert.ErrorIs(t, Authorize(programmer, o, model.StatusInProgress), ErrNotAssigned)
}

func TestAllowedReturnsCopy(t *testing.T) {
	got := Allowed(model.RoleManager, model.StatusSubmitted)
	require.Len(t, got, 2)
	got[0] = model.StatusDone

	assert.Equal(t, []model.Status{model.StatusAccepted, model.StatusRejected}, Allowed(model.RoleManager, model.StatusSubmitted))
	assert.Empty(t, Allowed(model.RoleClient, model.StatusSubmitted))
}

func TestAvailable(t *testing.T) {
	assert.Equal(t, []model.Status{model.StatusDone, model.StatusClientFix}, Available(client, order(model.StatusAwaitingReview)))
	assert.Empty(t, Available(model.Actor{ID: 42, Role: model.RoleClient}, order(model.StatusAwaitingReview)))
	assert.Empty(t, Available(model.Actor{ID: 42, Role: model.RoleProgrammer}, order(model.StatusAccepted)))
	assert.Equal(t, []model.Status{model.StatusInProgress}, Available(programmer, order(model.StatusAccepted)))
}

func TestTerminalAndLabel(t *testing.T) {
	assert.True(t, Terminal(model.StatusDone))
	assert.True(t, Terminal(model.StatusRejected))
	assert.False(t, Terminal(model.StatusClientFix))

	for _, s := range Statuses() {
		assert.NotEqual(t, string(s), Label(s), "status %s has no label", s)
	}
	assert.Equal(t, "mystery", Label("mystery"))
}
