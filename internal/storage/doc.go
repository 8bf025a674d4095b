// Package storage opens the bot's SQLite database and keeps its schema
// current.
//
// The database is a single file driven by the pure-Go modernc driver through
// sqlx. Schema changes live in migrations/ as goose SQL files embedded into
// the binary; Open applies any that are outstanding.
package storage
