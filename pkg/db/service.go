package db

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	PsqlType = "postgres-db"
	wlog     = logrus.WithField(
		"module", PsqlType,
	)
)

// PostgresDBService is the relational reward sink. Saves are keyed by
// the extraction window epoch, so re-saving the same window after a
// transient failure replaces the rows instead of appending duplicates.
type PostgresDBService struct {
	ctx           context.Context
	connectionUrl string
	psqlPool      *pgxpool.Pool
}

// Connect to the PostgreSQL database and get the multithread-proof
// connection from the given url-composed credentials.
func New(ctx context.Context, url string) (*PostgresDBService, error) {
	pService := &PostgresDBService{
		ctx:           ctx,
		connectionUrl: url,
	}

	wlog.Infof("connecting to postgres db")
	psqlPool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to the psqldb")
	}
	pService.psqlPool = psqlPool
	wlog.Infof("successfully connected to the database")

	if err := pService.createRewardsTable(); err != nil {
		return nil, errors.Wrap(err, "error initializing the tables of the psqldb")
	}
	return pService, nil
}

func (p *PostgresDBService) Close() {
	if p.psqlPool != nil {
		p.psqlPool.Close()
	}
}
