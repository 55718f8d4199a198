package person

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mehmetcc/warden/pkg/id"
	"go.uber.org/zap"
)

type personRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPersonRepo(db *sql.DB, logger *zap.Logger) Store {
	return &personRepo{
		db:     db,
		logger: logger,
	}
}

const (
	personColumns = `id, public_id::text, email, username, password, role, is_active, is_deleted, last_login_at, created_at, updated_at`

	insertPersonQuery = `
						INSERT INTO persons (email, username, password, role, is_active, is_deleted)
						VALUES ($1, $2, $3, $4, $5, false)
						RETURNING ` + personColumns
	findByIdentifierQuery = `
						SELECT ` + personColumns + `
						FROM persons
						WHERE is_deleted = false
						  AND (lower(email) = lower($1) OR username = $1)
						LIMIT 2
						`
	findByIDQuery = `
						SELECT ` + personColumns + `
						FROM persons
						WHERE public_id = $1::uuid AND is_deleted = false
						`
	updatePersonQuery = `
						UPDATE persons SET
						  email         = COALESCE($2, email),
						  username      = COALESCE($3, username),
						  password      = COALESCE($4, password),
						  role          = COALESCE($5, role),
						  is_active     = COALESCE($6, is_active),
						  last_login_at = COALESCE($7, last_login_at),
						  updated_at    = now()
						WHERE public_id = $1::uuid AND is_deleted = false
						RETURNING ` + personColumns
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*Person, error) {
	var p Person
	var lastLogin sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.PublicID,
		&p.Email,
		&p.Username,
		&p.Password,
		&p.Role,
		&p.IsActive,
		&p.IsDeleted,
		&lastLogin,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLoginAt = &t
	}
	return &p, nil
}

func redact(p *Person, o findOptions) *Person {
	if !o.withSecret {
		p.Password = ""
	}
	return p
}

func (p *personRepo) Create(ctx context.Context, dto *PersonDTO) (*Person, error) {
	role := dto.Role
	if role == "" {
		role = RoleUser
	}
	row := p.db.QueryRowContext(ctx,
		insertPersonQuery,
		NormalizeEmail(dto.Email),
		strings.TrimSpace(dto.Username),
		dto.Password,
		role,
		dto.IsActive,
	)

	created, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			p.logger.Warn("create person canceled/timed out", zap.Error(err))
			return nil, err
		}
		if mapped := p.uniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		p.logger.Error("driver/scan error", zap.Error(err))
		return nil, err
	}

	p.logger.Debug("person created",
		zap.Int64("id", created.ID),
		zap.String("public_id", created.PublicID.String()),
	)
	created.Password = ""
	return created, nil
}

func (p *personRepo) FindByIdentifier(ctx context.Context, identifier string, opts ...FindOption) (*Person, error) {
	o := applyFindOptions(opts)
	rows, err := p.db.QueryContext(ctx, findByIdentifierQuery, strings.TrimSpace(identifier))
	if err != nil {
		p.logger.Error("failed to look up person by identifier", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var matches []*Person
	for rows.Next() {
		found, err := scanPerson(rows)
		if err != nil {
			p.logger.Error("failed to scan person", zap.Error(err))
			return nil, err
		}
		matches = append(matches, found)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return redact(matches[0], o), nil
	default:
		p.logger.Warn("identifier matched more than one person")
		return nil, ErrAmbiguousIdentifier
	}
}

func (p *personRepo) FindByID(ctx context.Context, publicID id.PublicID, opts ...FindOption) (*Person, error) {
	o := applyFindOptions(opts)
	if _, err := id.ParsePublicID(publicID.String()); err != nil {
		return nil, ErrNotFound
	}
	found, err := scanPerson(p.db.QueryRowContext(ctx, findByIDQuery, publicID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		p.logger.Error("failed to look up person by id", zap.String("public_id", publicID.String()), zap.Error(err))
		return nil, err
	}
	return redact(found, o), nil
}

func (p *personRepo) Update(ctx context.Context, publicID id.PublicID, patch Patch) (*Person, error) {
	if _, err := id.ParsePublicID(publicID.String()); err != nil {
		return nil, ErrNotFound
	}
	if patch.Email != nil {
		e := NormalizeEmail(*patch.Email)
		patch.Email = &e
	}

	row := p.db.QueryRowContext(ctx, updatePersonQuery,
		publicID.String(),
		patch.Email,
		patch.Username,
		patch.Password,
		patch.Role,
		patch.IsActive,
		patch.LastLoginAt,
	)
	updated, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if mapped := p.uniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		p.logger.Error("failed to update person", zap.String("public_id", publicID.String()), zap.Error(err))
		return nil, err
	}
	updated.Password = ""
	return updated, nil
}

// uniqueViolation maps a Postgres unique violation on persons to the
// matching conflict error, or returns nil.
func (p *personRepo) uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "persons_email_key":
		p.logger.Debug("duplicate email")
		return ErrDuplicateEmail
	case "persons_username_key":
		p.logger.Debug("duplicate username")
		return ErrDuplicateUsername
	}

	// unique index on an expression reports the column in the detail
	det := strings.ToLower(pgErr.Detail)
	if strings.Contains(det, "lower(email)") || strings.Contains(det, "(email)") {
		p.logger.Debug("duplicate email (detail match)")
		return ErrDuplicateEmail
	}
	if strings.Contains(det, "(username)") {
		p.logger.Debug("duplicate username (detail match)")
		return ErrDuplicateUsername
	}
	p.logger.Error("postgres error",
		zap.String("code", pgErr.Code),
		zap.String("msg", pgErr.Message),
		zap.String("constraint", pgErr.ConstraintName),
	)
	return nil
}
