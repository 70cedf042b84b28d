package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"collabnotes/internal/auth"
	"collabnotes/internal/models"
	"collabnotes/internal/repositories"
	"collabnotes/internal/session"
	"collabnotes/internal/testhelpers"

	"gorm.io/gorm"
)

type discardSender struct{}

func (discardSender) Send(models.WSFrame) error { return nil }

type noteFixture struct {
	h       *NoteHandler
	db      *gorm.DB
	manager *session.Manager
	owner   *models.User
	writer  *models.User
	reader  *models.User
	other   *models.User
	note    *models.Note
}

func newNoteFixture(t *testing.T) *noteFixture {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	notes := &repositories.NoteRepository{DB: db}
	collaborators := &repositories.CollaboratorRepository{DB: db}
	authz := auth.NewNoteAuthorizer(notes, collaborators)
	manager := session.NewManager(authz)

	f := &noteFixture{
		h: &NoteHandler{
			Notes:         notes,
			Versions:      &repositories.VersionRepository{DB: db},
			Collaborators: collaborators,
			Users:         &repositories.UserRepository{DB: db},
			Authz:         authz,
			Presence:      manager,
		},
		db:      db,
		manager: manager,
		owner:   testhelpers.SeedUser(t, db, "owner"),
		writer:  testhelpers.SeedUser(t, db, "writer"),
		reader:  testhelpers.SeedUser(t, db, "reader"),
		other:   testhelpers.SeedUser(t, db, "other"),
	}
	f.note = testhelpers.SeedNote(t, db, f.owner.ID, "plan", false)
	testhelpers.Grant(t, db, f.note.ID, f.writer.ID, models.AccessWrite)
	testhelpers.Grant(t, db, f.note.ID, f.reader.ID, models.AccessRead)
	return f
}

// call runs handler as user with the {id} param set to the fixture note
// unless extra params override it.
func (f *noteFixture) call(handler http.HandlerFunc, user *models.User, method, body string, params ...string) *httptest.ResponseRecorder {
	if len(params) == 0 || params[0] != "id" {
		params = append([]string{"id", f.note.ID}, params...)
	}
	req := withParams(newRequest(method, "/api/v1/notes", body), params...)
	rec := httptest.NewRecorder()
	handler(rec, asUser(req, user))
	return rec
}

func TestNoteHandler_Create(t *testing.T) {
	f := newNoteFixture(t)

	rec := f.call(f.h.CreateNoteHandler, f.other, http.MethodPost, `{"title":"  Draft ","content":"hello"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var note models.Note
	decodeBody(t, rec, &note)
	if note.ID == "" || note.OwnerID != f.other.ID || note.Title != "Draft" || note.Version != 1 {
		t.Fatalf("unexpected note %+v", note)
	}

	for name, body := range map[string]string{
		"empty title": `{"title":"   "}`,
		"long title":  fmt.Sprintf(`{"title":"%0201d"}`, 0),
		"malformed":   `{"title":`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.call(f.h.CreateNoteHandler, f.other, http.MethodPost, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestNoteHandler_List(t *testing.T) {
	f := newNoteFixture(t)
	testhelpers.SeedNote(t, f.db, f.reader.ID, "mine", false)
	testhelpers.SeedNote(t, f.db, f.other.ID, "not shared", true)

	rec := f.call(f.h.ListNotesHandler, f.reader, http.MethodGet, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page models.PageResponse[models.Note]
	decodeBody(t, rec, &page)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected own and shared note, got %+v", page)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes?page=0", nil)
	rec = httptest.NewRecorder()
	f.h.ListNotesHandler(rec, asUser(req, f.reader))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", rec.Code)
	}
}

func TestNoteHandler_Get(t *testing.T) {
	f := newNoteFixture(t)
	public := testhelpers.SeedNote(t, f.db, f.owner.ID, "open", true)

	tests := []struct {
		name   string
		user   *models.User
		noteID string
		want   int
	}{
		{"owner", f.owner, f.note.ID, http.StatusOK},
		{"reader", f.reader, f.note.ID, http.StatusOK},
		{"stranger on private note", f.other, f.note.ID, http.StatusNotFound},
		{"stranger on public note", f.other, public.ID, http.StatusOK},
		{"missing note", f.owner, "does-not-exist", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.call(f.h.GetNoteHandler, tt.user, http.MethodGet, "", "id", tt.noteID)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestNoteHandler_Update(t *testing.T) {
	t.Run("writer edits content", func(t *testing.T) {
		f := newNoteFixture(t)
		rec := f.call(f.h.UpdateNoteHandler, f.writer, http.MethodPut, `{"content":"v2"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var note models.Note
		decodeBody(t, rec, &note)
		if note.Content != "v2" || note.Version != 2 {
			t.Fatalf("unexpected note %+v", note)
		}
	})

	t.Run("reader cannot edit", func(t *testing.T) {
		f := newNoteFixture(t)
		rec := f.call(f.h.UpdateNoteHandler, f.reader, http.MethodPut, `{"content":"v2"}`)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("only owner changes visibility", func(t *testing.T) {
		f := newNoteFixture(t)
		rec := f.call(f.h.UpdateNoteHandler, f.writer, http.MethodPut, `{"isPublic":true}`)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for writer, got %d", rec.Code)
		}
		rec = f.call(f.h.UpdateNoteHandler, f.owner, http.MethodPut, `{"isPublic":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for owner, got %d", rec.Code)
		}
		var note models.Note
		decodeBody(t, rec, &note)
		if !note.IsPublic || note.Version != 1 {
			t.Fatalf("visibility change should not bump version: %+v", note)
		}
	})

	t.Run("blank title", func(t *testing.T) {
		f := newNoteFixture(t)
		rec := f.call(f.h.UpdateNoteHandler, f.owner, http.MethodPut, `{"title":""}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestNoteHandler_Delete(t *testing.T) {
	f := newNoteFixture(t)

	if rec := f.call(f.h.DeleteNoteHandler, f.writer, http.MethodDelete, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rec.Code)
	}
	if rec := f.call(f.h.DeleteNoteHandler, f.owner, http.MethodDelete, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := f.call(f.h.GetNoteHandler, f.owner, http.MethodGet, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestNoteHandler_Versions(t *testing.T) {
	f := newNoteFixture(t)
	if rec := f.call(f.h.UpdateNoteHandler, f.owner, http.MethodPut, `{"content":"second"}`); rec.Code != http.StatusOK {
		t.Fatalf("update: %d", rec.Code)
	}

	rec := f.call(f.h.ListVersionsHandler, f.reader, http.MethodGet, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page models.PageResponse[models.NoteVersion]
	decodeBody(t, rec, &page)
	if page.Total != 1 || page.Items[0].Version != 1 {
		t.Fatalf("expected the original as version 1, got %+v", page)
	}

	rec = f.call(f.h.GetVersionHandler, f.reader, http.MethodGet, "", "id", f.note.ID, "version", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var v models.NoteVersion
	decodeBody(t, rec, &v)
	if v.Content != "" || v.ModifiedBy != f.owner.ID {
		t.Fatalf("unexpected version %+v", v)
	}

	if rec := f.call(f.h.GetVersionHandler, f.reader, http.MethodGet, "", "id", f.note.ID, "version", "7"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown version, got %d", rec.Code)
	}
	if rec := f.call(f.h.GetVersionHandler, f.reader, http.MethodGet, "", "id", f.note.ID, "version", "zero"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad version, got %d", rec.Code)
	}
	if rec := f.call(f.h.RestoreVersionHandler, f.reader, http.MethodPost, "", "id", f.note.ID, "version", "1"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for reader restore, got %d", rec.Code)
	}

	rec = f.call(f.h.RestoreVersionHandler, f.writer, http.MethodPost, "", "id", f.note.ID, "version", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var restored models.Note
	decodeBody(t, rec, &restored)
	if restored.Content != "" || restored.Version != 3 {
		t.Fatalf("unexpected restored note %+v", restored)
	}
}

func TestNoteHandler_Collaborators(t *testing.T) {
	t.Run("owner shares and lists", func(t *testing.T) {
		f := newNoteFixture(t)
		body := fmt.Sprintf(`{"userId":%d,"permission":"write"}`, f.other.ID)
		rec := f.call(f.h.AddCollaboratorHandler, f.owner, http.MethodPost, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var c models.Collaborator
		decodeBody(t, rec, &c)
		if c.UserID != f.other.ID || c.Permission != models.AccessWrite {
			t.Fatalf("unexpected grant %+v", c)
		}

		rec = f.call(f.h.ListCollaboratorsHandler, f.reader, http.MethodGet, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var list []models.Collaborator
		decodeBody(t, rec, &list)
		if len(list) != 3 {
			t.Fatalf("expected 3 collaborators, got %d", len(list))
		}
	})

	t.Run("add is rejected", func(t *testing.T) {
		f := newNoteFixture(t)
		cases := []struct {
			name string
			user *models.User
			body string
			want int
		}{
			{"non-owner", f.writer, fmt.Sprintf(`{"userId":%d,"permission":"read"}`, f.other.ID), http.StatusForbidden},
			{"self", f.owner, fmt.Sprintf(`{"userId":%d,"permission":"read"}`, f.owner.ID), http.StatusBadRequest},
			{"bad permission", f.owner, fmt.Sprintf(`{"userId":%d,"permission":"admin"}`, f.other.ID), http.StatusBadRequest},
			{"unknown user", f.owner, `{"userId":9999,"permission":"read"}`, http.StatusNotFound},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if rec := f.call(f.h.AddCollaboratorHandler, tc.user, http.MethodPost, tc.body); rec.Code != tc.want {
					t.Fatalf("expected %d, got %d", tc.want, rec.Code)
				}
			})
		}
	})

	t.Run("remove", func(t *testing.T) {
		f := newNoteFixture(t)
		if rec := f.call(f.h.RemoveCollaboratorHandler, f.reader, http.MethodDelete, "", "id", f.note.ID, "userId", f.writer.IDString()); rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 removing someone else, got %d", rec.Code)
		}
		// a stranger sees the same answer whether or not the note exists
		for _, noteID := range []string{f.note.ID, "does-not-exist"} {
			rec := f.call(f.h.RemoveCollaboratorHandler, f.other, http.MethodDelete, "", "id", noteID, "userId", f.writer.IDString())
			if rec.Code != http.StatusNotFound {
				t.Fatalf("expected 404 for stranger on %s, got %d", noteID, rec.Code)
			}
		}
		if rec := f.call(f.h.DeleteNoteHandler, f.other, http.MethodDelete, "", "id", f.note.ID); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for stranger deleting, got %d", rec.Code)
		}
		if rec := f.call(f.h.RemoveCollaboratorHandler, f.reader, http.MethodDelete, "", "id", f.note.ID, "userId", f.reader.IDString()); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204 removing self, got %d", rec.Code)
		}
		if rec := f.call(f.h.RemoveCollaboratorHandler, f.owner, http.MethodDelete, "", "id", f.note.ID, "userId", f.writer.IDString()); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204 for owner, got %d", rec.Code)
		}
		if rec := f.call(f.h.RemoveCollaboratorHandler, f.owner, http.MethodDelete, "", "id", f.note.ID, "userId", f.writer.IDString()); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for missing grant, got %d", rec.Code)
		}
		allowed, err := f.h.Authz.Authorize(context.Background(), f.note.ID, f.reader.IDString(), models.AccessRead)
		if err != nil || allowed {
			t.Fatalf("expected access revoked, got %v, %v", allowed, err)
		}
	})
}

func TestNoteHandler_Presence(t *testing.T) {
	f := newNoteFixture(t)
	ctx := context.Background()
	if err := f.manager.Connect("c-writer", f.writer.Identity(), discardSender{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := f.manager.Join(ctx, "c-writer", f.note.ID); err != nil {
		t.Fatalf("join: %v", err)
	}

	rec := f.call(f.h.PresenceHandler, f.reader, http.MethodGet, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.NotePresenceResponse
	decodeBody(t, rec, &resp)
	if resp.NoteID != f.note.ID || len(resp.Members) != 1 || resp.Members[0] != f.writer.Identity() {
		t.Fatalf("unexpected presence %+v", resp)
	}

	if rec := f.call(f.h.PresenceHandler, f.other, http.MethodGet, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger, got %d", rec.Code)
	}
}
