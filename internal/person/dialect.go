package person

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"

	"personrelay/internal/constants"
)

// dialect holds the statements that differ between the supported row stores.
// Both insert statements skip rows whose PersonID already exists so the
// affected count excludes duplicates.
type dialect struct {
	name        string
	selectAll   string
	insertOne   string
	insertBatch string
	isUnique    func(err error) bool
}

func newDialect(driver, table string) (dialect, error) {
	if table == "" {
		table = constants.DefaultTable
	}

	switch driver {
	case constants.DriverPostgres, "":
		t := pq.QuoteIdentifier(table)
		return dialect{
			name:      constants.DriverPostgres,
			selectAll: fmt.Sprintf(`SELECT "PersonID", "Email" FROM %s`, t),
			insertOne: fmt.Sprintf(
				`INSERT INTO %s ("PersonID", "Email") VALUES ($1, $2) RETURNING "PersonID", "Email"`, t),
			insertBatch: fmt.Sprintf(
				`INSERT INTO %s ("PersonID", "Email") VALUES ($1, $2) ON CONFLICT ("PersonID") DO NOTHING`, t),
			isUnique: isPostgresUnique,
		}, nil
	case constants.DriverSQLServer:
		t := quoteSQLServer(table)
		return dialect{
			name:      constants.DriverSQLServer,
			selectAll: fmt.Sprintf(`SELECT PersonID, Email FROM %s`, t),
			insertOne: fmt.Sprintf(
				`INSERT INTO %s (PersonID, Email) OUTPUT INSERTED.PersonID, INSERTED.Email VALUES (@p1, @p2)`, t),
			insertBatch: fmt.Sprintf(
				`INSERT INTO %[1]s (PersonID, Email) SELECT @p1, @p2 WHERE NOT EXISTS (SELECT 1 FROM %[1]s WHERE PersonID = @p1)`, t),
			isUnique: isSQLServerUnique,
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func quoteSQLServer(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func isPostgresUnique(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
}

// 2627 is a unique constraint violation, 2601 a unique index violation.
func isSQLServerUnique(err error) bool {
	var msErr mssql.Error
	if stderrors.As(err, &msErr) {
		return msErr.Number == 2627 || msErr.Number == 2601
	}
	return false
}
