package report

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itflow/internal/model"
)

func TestWrite(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	r := FinalReport{
		Company: Company{Name: "ITFlow Sp. z o.o.", Address: "ul. Technologiczna 10", TaxID: "123", Phone: "+48 1"},
		Order: model.Order{
			ID:          3,
			Title:       "Sklep internetowy",
			Description: "Integracja płatności i wydanie MVP.",
			Status:      model.StatusDone,
			CreatedAt:   created,
			UpdatedAt:   created.Add(72 * time.Hour),
		},
		ClientName:  "Klara Client",
		ManagerName: "Marek Manager",
		GeneratedAt: created.Add(73 * time.Hour),
	}
	for i := 0; i < 120; i++ {
		r.History = append(r.History, model.LogEntry{
			ID:          int64(i + 1),
			EventType:   model.EventComment,
			Description: fmt.Sprintf("note %d", i),
			ActorName:   "marek",
			Timestamp:   created.Add(time.Duration(i) * time.Minute),
		})
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 1000)
}

func TestWriteWithoutHistoryOrManager(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, FinalReport{
		Order:       model.Order{ID: 1, Title: "Landing page", Description: "x", Status: model.StatusSubmitted},
		ClientName:  "klara",
		GeneratedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
