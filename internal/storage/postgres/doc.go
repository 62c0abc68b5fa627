// Package postgres implements storage.Store on PostgreSQL with the pgvector
// extension. Tables are owned by external migrations; testdata/schema.sql is
// the layout these repositories expect.
package postgres
