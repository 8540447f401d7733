package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"itflow/internal/model"
	"itflow/internal/service"
)

type ContactStore interface {
	Create(ctx context.Context, in service.ContactInput) (*model.ContactMessage, error)
	List(ctx context.Context, actor model.Actor, answered *bool) ([]model.ContactMessage, error)
	Mine(ctx context.Context, actor model.Actor) ([]model.ContactMessage, error)
	Get(ctx context.Context, actor model.Actor, id int64) (*model.ContactMessage, error)
	Respond(ctx context.Context, actor model.Actor, id int64, text string) (*model.ContactMessage, error)
	Delete(ctx context.Context, actor model.Actor, id int64) error
	Stats(ctx context.Context, actor model.Actor) (*model.ContactStats, error)
}

type OrderMailer interface {
	SendOrderEmail(ctx context.Context, actor model.Actor, orderID int64, in service.OrderEmailInput) error
}

func CreateContactHandler(contacts ContactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.ContactInput
		if !decodeJSON(w, r, &req) {
			return
		}

		m, err := contacts.Create(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, messageResponse{Message: "Message sent successfully", Data: m})
	}
}

func ListContactsHandler(contacts ContactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var answered *bool
		if v := r.URL.Query().Get("is_answered"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, service.ValidationError{"is_answered": {"Must be a valid boolean."}})
				return
			}
			answered = &b
		}

		list, err := contacts.List(r.Context(), actor, answered)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func MyContactsHandler(contacts ContactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		list, err := contacts.Mine(r.Context(), actor)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func ContactStatsHandler(contacts ContactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		stats, err := contacts.Stats(r.Context(), actor)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func GetContactHandler(contacts ContactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		m, err := contacts.Get(r.Context(), actor, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

type respondRequest struct {
	ResponseMessage string `json:"response_message"`
}

func RespondContactHandler(contacts ContactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		var req respondRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		m, err := contacts.Respond(r.Context(), actor, id, req.ResponseMessage)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Response sent successfully", Data: m})
	}
}

func DeleteContactHandler(contacts ContactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}

		if err := contacts.Delete(r.Context(), actor, id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SendOrderEmailHandler takes a multipart form with subject, message and
// file_attachment and mails it to the order's client.
func SendOrderEmailHandler(mailer OrderMailer, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		orderID, ok := idParam(w, r, "orderID")
		if !ok {
			return
		}

		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, r, service.ErrFileTooLarge)
				return
			}
			writeDetail(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		in := service.OrderEmailInput{
			Subject: r.FormValue("subject"),
			Message: r.FormValue("message"),
		}
		file, header, err := r.FormFile("file_attachment")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeDetail(w, http.StatusBadRequest, "invalid multipart form")
			return
		default:
			defer file.Close()
			content, err := io.ReadAll(file)
			if err != nil {
				writeDetail(w, http.StatusBadRequest, "failed to read attachment")
				return
			}
			in.Attachment = &service.Attachment{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Content:     content,
			}
		}

		if err := mailer.SendOrderEmail(r.Context(), actor, orderID, in); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Email sent successfully"})
	}
}
