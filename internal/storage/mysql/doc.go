// Package mysql persists wallet accounts in MySQL. It owns the connection
// pool settings and applies the embedded schema migrations on start-up.
package mysql
