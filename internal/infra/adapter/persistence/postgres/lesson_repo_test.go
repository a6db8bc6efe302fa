package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/infra/adapter/persistence/postgres"
)

var lessonCols = []string{
	"id", "title", "content", "category", "difficulty",
	"tags", "source", "created_at", "last_used_at", "usage_count",
}

func lessonRow(l *entity.Lesson) *sqlmock.Rows {
	return sqlmock.NewRows(lessonCols).AddRow(
		l.ID, l.Title, l.Content, l.Category, l.Difficulty,
		[]byte(`["tense"]`), l.Source, l.CreatedAt, l.LastUsedAt, l.UsageCount,
	)
}

func sampleLesson(id int64) *entity.Lesson {
	return &entity.Lesson{
		ID:         id,
		Title:      "Present perfect",
		Content:    "Usage of the present perfect tense.",
		Category:   entity.CategoryGrammar,
		Difficulty: entity.DifficultyBeginner,
		Tags:       []string{"tense"},
		Source:     entity.SourceManual,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestLessonRepo_GetUnused(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := sampleLesson(1)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE usage_count = 0`)).
		WillReturnRows(lessonRow(want))

	repo := postgres.NewLessonRepo(db)
	got, err := repo.GetUnused(context.Background())
	if err != nil {
		t.Fatalf("GetUnused err=%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len=%d, want 1", len(got))
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLessonRepo_GetByCategory(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := sampleLesson(2)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE category = $1`)).
		WithArgs(entity.CategoryGrammar).
		WillReturnRows(lessonRow(want))

	repo := postgres.NewLessonRepo(db)
	got, err := repo.GetByCategory(context.Background(), entity.CategoryGrammar)
	if err != nil {
		t.Fatalf("GetByCategory err=%v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("got=%v, want one lesson with id 2", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLessonRepo_GetLeastRecentlyUsed(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	used := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	want := sampleLesson(3)
	want.LastUsedAt = &used
	want.UsageCount = 2

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY last_used_at ASC NULLS FIRST`)).
		WillReturnRows(lessonRow(want))

	repo := postgres.NewLessonRepo(db)
	got, err := repo.GetLeastRecentlyUsed(context.Background())
	if err != nil {
		t.Fatalf("GetLeastRecentlyUsed err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLessonRepo_GetLeastRecentlyUsed_Empty(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY last_used_at ASC NULLS FIRST`)).
		WillReturnRows(sqlmock.NewRows(lessonCols))

	repo := postgres.NewLessonRepo(db)
	got, err := repo.GetLeastRecentlyUsed(context.Background())
	if err != nil {
		t.Fatalf("GetLeastRecentlyUsed err=%v", err)
	}
	if got != nil {
		t.Fatalf("got=%v, want nil for empty table", got)
	}
}

func TestLessonRepo_MarkUsed(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	usedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`SET last_used_at = $2, usage_count = usage_count + 1`)).
		WithArgs(int64(5), usedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := postgres.NewLessonRepo(db)
	if err := repo.MarkUsed(context.Background(), 5, usedAt); err != nil {
		t.Fatalf("MarkUsed err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLessonRepo_MarkUsed_Missing(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`usage_count = usage_count + 1`)).
		WithArgs(int64(99), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := postgres.NewLessonRepo(db)
	err := repo.MarkUsed(context.Background(), 99, time.Now())
	if err == nil {
		t.Fatal("MarkUsed on missing lesson should fail")
	}
}

func TestLessonRepo_ResetCycle(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`SET last_used_at = NULL, usage_count = 0`)).
		WillReturnResult(sqlmock.NewResult(0, 42))

	repo := postgres.NewLessonRepo(db)
	if err := repo.ResetCycle(context.Background()); err != nil {
		t.Fatalf("ResetCycle err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLessonRepo_Count(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM lessons`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(31))

	repo := postgres.NewLessonRepo(db)
	got, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count err=%v", err)
	}
	if got != 31 {
		t.Fatalf("Count=%d, want 31", got)
	}
}

func TestLessonRepo_Create(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	lesson := sampleLesson(0)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO lessons`)).
		WithArgs(lesson.Title, lesson.Content, lesson.Category, lesson.Difficulty,
			[]byte(`["tense"]`), lesson.Source, lesson.CreatedAt, nil, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	repo := postgres.NewLessonRepo(db)
	if err := repo.Create(context.Background(), lesson); err != nil {
		t.Fatalf("Create err=%v", err)
	}
	if lesson.ID != 11 {
		t.Fatalf("ID=%d, want 11", lesson.ID)
	}
}

func TestLessonRepo_Create_Invalid(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	lesson := sampleLesson(0)
	lesson.Category = "nope"

	repo := postgres.NewLessonRepo(db)
	if err := repo.Create(context.Background(), lesson); err == nil {
		t.Fatal("Create with invalid category should fail before touching the database")
	}
}
