package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*PostgresJobRepo)(nil)

const jobColumns = `id, source, title, concept, duration_minutes, status, library_status,
  current_task, error, created_at, updated_at, raw_outline_text, refined_title, outlines,
  hook, chapters_content, words_written, total_words, thumbnail_ideas, thumbnail_image_urls,
  title_packages`

type PostgresJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewPostgresJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *PostgresJobRepo {
	if tm == nil {
		tm = NewTxManager(pool)
	}
	return &PostgresJobRepo{pool: pool, tm: tm}
}

func (r *PostgresJobRepo) Create(ctx context.Context, tx repository.Tx, j *model.Job) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	outlines, chapters, ideas, urls, pkgs, err := marshalJobJSON(j)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO script_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15,$16::jsonb,$17,$18,$19::jsonb,$20::jsonb,$21::jsonb);`
	_, err = ex.Exec(ctx, q,
		j.ID, j.Source, j.Title, j.Concept, j.DurationMinutes, j.Status, j.LibraryStatus,
		j.CurrentTask, j.Error, j.CreatedAt, j.UpdatedAt, j.RawOutlineText, j.RefinedTitle, outlines,
		j.Hook, chapters, j.WordsWritten, j.TotalWords, ideas, urls, pkgs)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	row := ex.QueryRow(ctx, `SELECT `+jobColumns+` FROM script_jobs WHERE id=$1;`, id)
	return scanJob(row)
}

func (r *PostgresJobRepo) List(ctx context.Context, tx repository.Tx, f repository.JobFilter) ([]*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.LibraryStatus != "" {
		args = append(args, f.LibraryStatus)
		where = append(where, fmt.Sprintf("library_status=$%d", len(args)))
	}
	q := `SELECT ` + jobColumns + ` FROM script_jobs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Update builds a SET clause from the non-nil patch fields. Chapter and
// thumbnail appends are jsonb concatenations so they never overwrite.
func (r *PostgresJobRepo) Update(ctx context.Context, tx repository.Tx, id string, p model.JobPatch) (*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q, args, err := buildJobUpdate(id, p, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return scanJob(ex.QueryRow(ctx, q, args...))
}

func (r *PostgresJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `DELETE FROM script_jobs WHERE id=$1;`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresJobRepo) NextPending(ctx context.Context) (*model.Job, error) {
	var job *model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const pick = `
SELECT id FROM script_jobs
WHERE status = 'PENDING'
ORDER BY created_at, id
LIMIT 1
FOR UPDATE SKIP LOCKED;`
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		var id string
		if err := ex.QueryRow(ctx, pick).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("pick pending job: %w", err)
		}
		job, err = r.Update(ctx, tx, id, model.JobPatch{
			Status:      model.Ptr(model.JobStatusWriting),
			Error:       model.Ptr(""),
			CurrentTask: model.Ptr("Queued run starting"),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func buildJobUpdate(id string, p model.JobPatch, now time.Time) (string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	addJSON := func(expr string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal patch: %w", err)
		}
		add(expr, string(b))
		return nil
	}

	if p.Status != nil {
		add("status=$%d", *p.Status)
	}
	if p.LibraryStatus != nil {
		add("library_status=$%d", *p.LibraryStatus)
	}
	if p.CurrentTask != nil {
		add("current_task=$%d", *p.CurrentTask)
	}
	if p.Error != nil {
		add("error=$%d", *p.Error)
	}
	if p.RawOutlineText != nil {
		add("raw_outline_text=$%d", *p.RawOutlineText)
	}
	if p.RefinedTitle != nil {
		add("refined_title=$%d", *p.RefinedTitle)
	}
	if p.Outlines != nil {
		if err := addJSON("outlines=$%d::jsonb", p.Outlines); err != nil {
			return "", nil, err
		}
	}
	if p.Hook != nil {
		add("hook=$%d", *p.Hook)
	}
	if len(p.AppendChapters) > 0 {
		if err := addJSON("chapters_content=chapters_content || $%d::jsonb", p.AppendChapters); err != nil {
			return "", nil, err
		}
	}
	if p.WordsWritten != nil {
		add("words_written=$%d", *p.WordsWritten)
	}
	if p.TotalWords != nil {
		add("total_words=$%d", *p.TotalWords)
	}
	if p.ThumbnailIdeas != nil {
		if err := addJSON("thumbnail_ideas=$%d::jsonb", p.ThumbnailIdeas); err != nil {
			return "", nil, err
		}
	}
	if len(p.AppendThumbnailURLs) > 0 {
		if err := addJSON("thumbnail_image_urls=thumbnail_image_urls || $%d::jsonb", p.AppendThumbnailURLs); err != nil {
			return "", nil, err
		}
	}
	if p.TitlePackages != nil {
		if err := addJSON("title_packages=$%d::jsonb", p.TitlePackages); err != nil {
			return "", nil, err
		}
	}
	add("updated_at=$%d", now)
	args = append(args, id)

	q := fmt.Sprintf("UPDATE script_jobs SET %s WHERE id=$%d RETURNING %s;",
		strings.Join(sets, ", "), len(args), jobColumns)
	return q, args, nil
}

func marshalJobJSON(j *model.Job) (outlines, chapters string, ideas *string, urls, pkgs string, err error) {
	enc := func(v any) string {
		if err != nil {
			return ""
		}
		var b []byte
		b, err = json.Marshal(v)
		return string(b)
	}
	outlines = enc(nonNil(j.Outlines))
	chapters = enc(nonNil(j.ChaptersContent))
	urls = enc(nonNil(j.ThumbnailImageURLs))
	pkgs = enc(nonNil(j.TitlePackages))
	if j.ThumbnailIdeas != nil {
		s := enc(j.ThumbnailIdeas)
		ideas = &s
	}
	if err != nil {
		err = fmt.Errorf("marshal job: %w", err)
	}
	return
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j                                    model.Job
		source, status, libStatus            string
		outlines, chapters, urls, pkgs, idea []byte
	)
	err := row.Scan(
		&j.ID, &source, &j.Title, &j.Concept, &j.DurationMinutes, &status, &libStatus,
		&j.CurrentTask, &j.Error, &j.CreatedAt, &j.UpdatedAt, &j.RawOutlineText, &j.RefinedTitle, &outlines,
		&j.Hook, &chapters, &j.WordsWritten, &j.TotalWords, &idea, &urls, &pkgs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	j.Source = model.JobSource(source)
	j.Status = model.JobStatus(status)
	j.LibraryStatus = model.LibraryStatus(libStatus)

	if err := unmarshalJSON(outlines, &j.Outlines); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(chapters, &j.ChaptersContent); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(urls, &j.ThumbnailImageURLs); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(pkgs, &j.TitlePackages); err != nil {
		return nil, err
	}
	if len(idea) > 0 && string(idea) != "null" {
		j.ThumbnailIdeas = &model.ThumbnailIdeas{}
		if err := json.Unmarshal(idea, j.ThumbnailIdeas); err != nil {
			return nil, fmt.Errorf("%w: thumbnail_ideas: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	if j.Outlines == nil {
		j.Outlines = []model.ChapterOutline{}
	}
	if j.ChaptersContent == nil {
		j.ChaptersContent = []string{}
	}
	return &j, nil
}

func unmarshalJSON(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return nil
}
