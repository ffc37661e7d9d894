package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"veridex.org/internal/autofill"
	"veridex.org/internal/share"
	"veridex.org/internal/vatr"
	"veridex.org/internal/view"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func viewRows(v view.View) *sqlmock.Rows {
	scopeJSON, _ := json.Marshal(v.Scope)
	configJSON, _ := json.Marshal(v.Config)
	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "name", "type", "scope", "config", "status",
		"is_public", "can_share", "created_by", "created_at", "updated_at", "published_at",
	})
	var published any
	if v.PublishedAt != nil {
		published = *v.PublishedAt
	}
	rows.AddRow(v.ID, v.OrganizationID, v.Name, string(v.Type), scopeJSON, configJSON,
		string(v.Status), v.IsPublic, v.CanShare, v.CreatedBy, v.CreatedAt, v.UpdatedAt, published)
	return rows
}

func TestViewStoreInsertRoundTrip(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	v := view.View{
		ID:             "01H0000000000000000000000V",
		OrganizationID: "org-a",
		Name:           "dd pack",
		Type:           view.TypeDueDiligencePack,
		Scope:          view.NewScope(view.Scope{ProjectIDs: []string{"10", "11"}}),
		Status:         view.StatusDraft,
		CanShare:       true,
		CreatedBy:      "u-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectQuery("insert into views").
		WithArgs(v.ID, v.OrganizationID, v.Name, string(v.Type), sqlmock.AnyArg(), sqlmock.AnyArg(),
			string(v.Status), v.IsPublic, v.CanShare, v.CreatedBy, v.CreatedAt, v.UpdatedAt, nil).
		WillReturnRows(viewRows(v))

	got, err := store.Views().Insert(context.Background(), v)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got.ID != v.ID || got.Name != v.Name {
		t.Fatalf("unexpected view back: %+v", got)
	}
	if len(got.Scope.ProjectIDs) != 2 {
		t.Fatalf("scope not decoded: %+v", got.Scope)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestViewStoreGetNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("(?s)select .* from views where id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Views().Get(context.Background(), "missing")
	if !errors.Is(err, view.ErrNotFound) {
		t.Fatalf("expected view.ErrNotFound, got %v", err)
	}
}

func TestShareStoreRevokeIsConditional(t *testing.T) {
	store, mock := newMock(t)
	at := time.Now().UTC()

	// A share already revoked matches no row; the store reports not found
	// and the service maps that to its terminal-state handling.
	mock.ExpectQuery("(?s)update shares.*set status = 'revoked'.*where id = \\$1 and status = 'active'").
		WithArgs("share-1", at, "admin-a", "done").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Shares().Revoke(context.Background(), "share-1", "admin-a", "done", at)
	if !errors.Is(err, share.ErrNotFound) {
		t.Fatalf("expected share.ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestShareStoreIncrementAccessCap(t *testing.T) {
	store, mock := newMock(t)

	// Counter bumps while under the cap.
	mock.ExpectQuery("(?s)update shares.*set access_count = access_count \\+ 1").
		WithArgs("share-1").
		WillReturnRows(sqlmock.NewRows([]string{"access_count"}).AddRow(2))
	count, err := store.Shares().IncrementAccess(context.Background(), "share-1")
	if err != nil || count != 2 {
		t.Fatalf("IncrementAccess: count=%d err=%v", count, err)
	}

	// At the cap the update matches no row but the share exists.
	mock.ExpectQuery("(?s)update shares.*set access_count = access_count \\+ 1").
		WithArgs("share-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("select true from shares where id").
		WithArgs("share-1").
		WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))
	_, err = store.Shares().IncrementAccess(context.Background(), "share-1")
	if !errors.Is(err, share.ErrCapReached) {
		t.Fatalf("expected ErrCapReached, got %v", err)
	}

	// An unknown share is not found.
	mock.ExpectQuery("(?s)update shares.*set access_count = access_count \\+ 1").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("select true from shares where id").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	_, err = store.Shares().IncrementAccess(context.Background(), "ghost")
	if !errors.Is(err, share.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTrailStoreAppendAssignsSequence(t *testing.T) {
	store, mock := newMock(t)
	e := vatr.Entry{
		AssetID:    "asset-1",
		OrgID:      "org-a",
		Action:     vatr.ActionUpdated,
		ActorID:    "u-1",
		ActorRole:  "editor",
		AfterHash:  "abc",
		SourceType: vatr.SourceManualEntry,
		OccurredAt: time.Now().UTC(),
	}

	mock.ExpectQuery("insert into vatr_entries").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(7))

	got, err := store.Trail().Append(context.Background(), e)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got.Seq != 7 {
		t.Fatalf("expected seq 7, got %d", got.Seq)
	}
	if got.ID == "" {
		t.Fatal("append must assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTrailStoreTrailNewestFirst(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "asset_id", "org_id", "seq", "action", "actor_id", "actor_role", "before_hash",
		"after_hash", "changes", "is_manual_override", "override_reason", "source_type",
		"confidence", "source_document_id", "occurred_at",
	}).
		AddRow("e2", "asset-1", "org-a", 2, "updated", "u-1", "editor", "h1", "h2", []byte(`{"name":"b"}`), false, nil, "manual_entry", nil, nil, now).
		AddRow("e1", "asset-1", "org-a", 1, "created", "u-1", "editor", nil, "h1", []byte(`{}`), false, nil, "manual_entry", nil, nil, now.Add(-time.Minute))

	mock.ExpectQuery("(?s)select .* from vatr_entries.*order by seq desc").
		WithArgs("asset-1").
		WillReturnRows(rows)

	trail, err := store.Trail().Trail(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("Trail: %v", err)
	}
	if len(trail) != 2 || trail[0].Seq != 2 || trail[1].Seq != 1 {
		t.Fatalf("unexpected trail order: %+v", trail)
	}
	if trail[0].Changes["name"] != "b" {
		t.Fatalf("changes not decoded: %+v", trail[0].Changes)
	}
}

func TestAutofillStoreRoundTrip(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	conf := 0.72
	d := autofill.Decision{
		ID:             "dec-1",
		AssetID:        "asset-1",
		OrganizationID: "org-a",
		FieldKey:       "capacity",
		Category:       "technical",
		Status:         autofill.StatusNeedsSelection,
		Confidence:     &conf,
		RequestedBy:    "u-1",
		CreatedAt:      now,
		Candidates:     []autofill.Candidate{{Label: "12.5 MW", Value: "12.5", Confidence: 0.72}},
	}

	mock.ExpectExec("insert into autofill_decisions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if _, err := store.Autofill().Insert(context.Background(), d); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	candidatesJSON, _ := encodeCandidates(d.Candidates)
	rows := sqlmock.NewRows([]string{
		"id", "asset_id", "organization_id", "field_key", "category", "status", "value",
		"candidates", "confidence", "resolves_id", "override_reason", "requested_by",
		"confirmed_by", "created_at",
	}).AddRow(d.ID, d.AssetID, d.OrganizationID, d.FieldKey, d.Category, string(d.Status), nil,
		candidatesJSON, conf, nil, nil, d.RequestedBy, nil, now)
	mock.ExpectQuery("(?s)select .* from autofill_decisions where id").
		WithArgs("dec-1").
		WillReturnRows(rows)

	got, err := store.Autofill().Get(context.Background(), "dec-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Candidates) != 1 || got.Candidates[0].Value != "12.5" {
		t.Fatalf("candidates not decoded: %+v", got.Candidates)
	}
	if len(got.Choices) != 1 || got.Choices[0].Label != "12.5 MW" {
		t.Fatalf("choices not rebuilt: %+v", got.Choices)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
