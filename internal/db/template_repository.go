package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opencode-ai/reportsmith/internal/models"
)

// Template repository errors.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrInvalidTemplate  = errors.New("invalid template")
)

const templateColumns = `id, user_id, title, body, instructions, active, created_at, updated_at`

// TemplateRepository handles template persistence.
type TemplateRepository struct {
	db *DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a new, active template. ID and timestamps are filled in when
// empty.
func (r *TemplateRepository) Create(ctx context.Context, tmpl *models.Template) error {
	if err := tmpl.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}

	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	if tmpl.UpdatedAt.IsZero() {
		tmpl.UpdatedAt = tmpl.CreatedAt
	}
	tmpl.Active = true

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tmpl.ID,
		tmpl.UserID,
		tmpl.Title,
		tmpl.Body,
		nullString(tmpl.Instructions),
		tmpl.Active,
		formatTime(tmpl.CreatedAt),
		formatTime(tmpl.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}

	return nil
}

// Get retrieves a template by ID, active or not.
func (r *TemplateRepository) Get(ctx context.Context, id string) (*models.Template, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)

	tmpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	return tmpl, err
}

// Update applies a partial update and returns the stored result.
func (r *TemplateRepository) Update(ctx context.Context, id string, update models.TemplateUpdate) (*models.Template, error) {
	if update.IsEmpty() {
		return r.Get(ctx, id)
	}

	validation := &models.ValidationErrors{}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		validation.AddMessage("title", "title is required")
	}
	if update.Body != nil && strings.TrimSpace(*update.Body) == "" {
		validation.AddMessage("body", "body is required")
	}
	if err := validation.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}

	sets := []string{}
	args := []any{}
	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *update.Body)
	}
	if update.Instructions != nil {
		sets = append(sets, "instructions = ?")
		args = append(args, nullString(*update.Instructions))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id)

	if err := r.execOne(ctx, `UPDATE templates SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, err
	}

	return r.Get(ctx, id)
}

// SoftDelete marks a template inactive. The row and its history are kept.
func (r *TemplateRepository) SoftDelete(ctx context.Context, id string) error {
	return r.execOne(ctx,
		`UPDATE templates SET active = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id,
	)
}

// SetActive sets the active flag, restoring a soft-deleted template when true.
func (r *TemplateRepository) SetActive(ctx context.Context, id string, active bool) (*models.Template, error) {
	if err := r.execOne(ctx,
		`UPDATE templates SET active = ?, updated_at = ? WHERE id = ?`,
		active, formatTime(time.Now()), id,
	); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// List returns templates matching opts in the requested order.
func (r *TemplateRepository) List(ctx context.Context, opts models.TemplateListOptions) ([]*models.Template, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	where, args := templateFilter(opts)
	query := `SELECT ` + templateColumns + ` FROM templates` + where + templateOrder(opts)
	if opts.Page > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.PerPage, (opts.Page-1)*opts.PerPage)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	templates := []*models.Template{}
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// Count returns how many templates match opts, ignoring paging.
func (r *TemplateRepository) Count(ctx context.Context, opts models.TemplateListOptions) (int, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return 0, err
	}

	where, args := templateFilter(opts)
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return count, nil
}

func (r *TemplateRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func templateFilter(opts models.TemplateListOptions) (string, []any) {
	where := ` WHERE 1=1`
	args := []any{}

	if opts.UserID != "" {
		where += ` AND user_id = ?`
		args = append(args, opts.UserID)
	}
	if opts.ActiveOnly {
		where += ` AND active = 1`
	}
	if search := strings.TrimSpace(opts.Search); search != "" {
		where += ` AND title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(search)+"%")
	}

	return where, args
}

func templateOrder(opts models.TemplateListOptions) string {
	column := string(opts.SortBy)
	if opts.SortBy == models.SortByTitle {
		column = "title COLLATE NOCASE"
	}
	direction := "DESC"
	if opts.SortOrder == models.SortAsc {
		direction = "ASC"
	}
	return fmt.Sprintf(` ORDER BY %s %s, id %s`, column, direction, direction)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var tmpl models.Template
	var instructions sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(
		&tmpl.ID,
		&tmpl.UserID,
		&tmpl.Title,
		&tmpl.Body,
		&instructions,
		&tmpl.Active,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	tmpl.Instructions = instructions.String
	tmpl.CreatedAt = parseTime(createdAt)
	tmpl.UpdatedAt = parseTime(updatedAt)

	return &tmpl, nil
}
