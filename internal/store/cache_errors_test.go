package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetDegradesOnQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT key, data, created_at").
		WillReturnError(errors.New("disk I/O error"))

	r := NewCacheRepository(db, logging.NewDiscard())
	assert.Nil(t, r.Get(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheSetPropagatesWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO cache").
		WillReturnError(errors.New("database or disk is full"))

	r := NewCacheRepository(db, logging.NewDiscard())
	err = r.Set(context.Background(), "k", "v", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk is full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheGetAllDegradesOnQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT key, data, created_at").
		WillReturnError(errors.New("disk I/O error"))

	r := NewCacheRepository(db, logging.NewDiscard())
	assert.Nil(t, r.GetAll(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
