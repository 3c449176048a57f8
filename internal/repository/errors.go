// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to tell a
// missing row or a unique-key clash apart from a store outage without
// inspecting driver-specific error codes.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("duplicate key")

// ErrUserNotFound is returned when no user row matches the identifier.
var ErrUserNotFound = errors.New("user not found")

// ErrTokenNotFound is returned when no live token row matches a lookup.
var ErrTokenNotFound = errors.New("token not found")

// ErrFileNotFound is returned when no file row matches the (id, owner) pair.
// A row owned by someone else is reported the same way.
var ErrFileNotFound = errors.New("file not found")

// mysqlDuplicateEntry is the server error number for ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
