package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

type dbUser struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Username       string         `db:"username"`
	Email          string         `db:"email"`
	OrganizationID null.String    `db:"organization_id"`
	IsActive       bool           `db:"is_active"`
	Roles          pq.StringArray `db:"roles"`
	PasswordHash   []byte         `db:"password_hash"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	LastLogin      null.Time      `db:"last_login"`
}

func newDBUser(usr user.User) dbUser {
	return dbUser{
		ID:             usr.ID,
		Name:           usr.Name,
		Username:       usr.Username,
		Email:          usr.Email,
		OrganizationID: null.NewString(usr.OrganizationID, usr.OrganizationID != ""),
		IsActive:       usr.IsActive,
		Roles:          usr.Roles,
		PasswordHash:   usr.PasswordHash,
		CreatedAt:      usr.CreatedAt,
		UpdatedAt:      usr.UpdatedAt,
		LastLogin:      null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	}
}

func (du dbUser) toUser() user.User {
	return user.User{
		ID:             du.ID,
		Name:           du.Name,
		Username:       du.Username,
		Email:          du.Email,
		OrganizationID: du.OrganizationID.String,
		IsActive:       du.IsActive,
		Roles:          du.Roles,
		PasswordHash:   du.PasswordHash,
		CreatedAt:      du.CreatedAt,
		UpdatedAt:      du.UpdatedAt,
		LastLogin:      du.LastLogin.Time,
	}
}

const userColumns = `id, name, username, email, organization_id, is_active, roles, password_hash, created_at, updated_at, last_login`

func (repo *userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM users WHERE ((username = $1 AND username <> '') OR (email = $2 AND email <> ''))`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]interface{}, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		query += fmt.Sprintf(` AND id NOT IN (%s)`, strmangle.Placeholders(true, len(ids), 3, 1))
		args = append(args, ids...)
	}

	rows, err := repo.db.Query(query, args...)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var uname, mail string
		if err = rows.Scan(&uname, &mail); err != nil {
			return errors.Wrap(err, "checking username uniqueness")
		}
		if uname == username {
			return user.ErrUsernameExists
		}
		if mail == email {
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(rows.Err(), "checking username uniqueness")
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	du := newDBUser(usr)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :name, :username, :email, :organization_id, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)`,
		du,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var dus []dbUser
	if err := repo.db.SelectContext(ctx, &dus, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return toUsers(dus), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 AND username <> ''`, username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND email <> ''`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE (username = $1 AND username <> '') OR (email = $1 AND email <> '')`, username)
}

func (repo *userRepository) getUser(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var du dbUser
	if err := repo.db.GetContext(ctx, &du, query, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return du.toUser(), nil
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + strings.ToLower(filter.Search) + "%")
		query += fmt.Sprintf(` AND (LOWER(name) LIKE %[1]s OR LOWER(username) LIKE %[1]s OR LOWER(email) LIKE %[1]s)`, p)
	}
	if len(filter.Roles) > 0 {
		prefixes := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			prefixes = append(prefixes, arg(role+"%"))
		}
		// any role starting with any of the given prefixes
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE ANY (ARRAY[%s]))`, strings.Join(prefixes, ", "))
	}
	if filter.IsActive != nil {
		query += ` AND is_active = ` + arg(*filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		query += ` AND created_at >= ` + arg(filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		query += ` AND created_at <= ` + arg(filter.CreatedTo.UTC())
	}
	query += ` ORDER BY created_at DESC`

	var dus []dbUser
	if err := repo.db.SelectContext(ctx, &dus, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return toUsers(dus), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	defer func() { _ = tx.Rollback() }()

	var du dbUser
	if err = tx.GetContext(ctx, &du, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, usr.ID); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	orig := du.toUser()

	// only save set fields
	if usr.Roles != nil {
		orig.Roles = usr.Roles
	}
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Username != "" {
		orig.Username = usr.Username
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	orig.UpdatedAt = usr.UpdatedAt

	if _, err = tx.NamedExecContext(ctx, `
		UPDATE users SET
			name = :name, username = :username, email = :email, is_active = :is_active,
			roles = :roles, password_hash = :password_hash, updated_at = :updated_at
		WHERE id = :id`,
		newDBUser(orig),
	); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = tx.Commit(); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return orig, nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, usr user.User) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, usr.ID, time.Now().UTC())
	return errors.Wrap(err, "setting last login")
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	query := fmt.Sprintf(`DELETE FROM users WHERE id IN (%s)`, strmangle.Placeholders(true, len(args), 1, 1))
	_, err := repo.db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "deleting users")
}

func toUsers(dus []dbUser) []user.User {
	users := make([]user.User, 0, len(dus))
	for _, du := range dus {
		users = append(users, du.toUser())
	}
	return users
}

// trapNoRowsErr converts sql.ErrNoRows to the domain's not-found error.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// orderClause renders orderings into an ORDER BY clause, falling back to the default.
func orderClause(ordering []core.DBOrdering, dflt string) string {
	if len(ordering) == 0 {
		return ` ORDER BY ` + dflt
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return ` ORDER BY ` + strings.Join(parts, ", ")
}
