package postgres

import (
	"context"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"gorm.io/gorm"
)

// GormRepository binds all entity repositories to one *gorm.DB. WithTx rebinds
// them to a transaction handle so multi-entity mutations commit atomically.
type GormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Attempt() repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: r.db}
}

func (r *GormRepository) Proctor() repositories.ProctorRepository {
	return &ProctorPostgreSQL{db: r.db}
}

func (r *GormRepository) Incident() repositories.IncidentRepository {
	return &IncidentPostgreSQL{db: r.db}
}

func (r *GormRepository) Appeal() repositories.AppealRepository {
	return &AppealPostgreSQL{db: r.db}
}

func (r *GormRepository) Counter() repositories.CounterRepository {
	return &CounterPostgreSQL{db: r.db}
}

func (r *GormRepository) WithTx(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

// AutoMigrate creates the integrity-domain schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Attempt{},
		&models.ProctorSession{},
		&models.ProctorEvent{},
		&models.ProctorEvidence{},
		&models.ProctorRiskRule{},
		&models.ProctorRiskSnapshot{},
		&models.ProctorDecision{},
		&models.IncidentCase{},
		&models.IncidentTimelineEntry{},
		&models.IncidentDecision{},
		&models.IncidentEvidenceLink{},
		&models.IncidentComment{},
		&models.AppealRequest{},
		&models.SequenceCounter{},
	)
}

// CounterPostgreSQL increments a named counter atomically and returns the new
// value. Runs inside whatever transaction the caller's repository carries.
type CounterPostgreSQL struct {
	db *gorm.DB
}

func (c *CounterPostgreSQL) Next(ctx context.Context, name string) (int64, error) {
	var value int64
	err := c.db.WithContext(ctx).Raw(
		`INSERT INTO sequence_counters (name, value) VALUES (?, 1)
		 ON CONFLICT (name) DO UPDATE SET value = sequence_counters.value + 1
		 RETURNING value`, name,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

// applyPaginationAndSort applies shared list semantics: bounded page size,
// whitelisted sort column handled by the caller.
func applyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	if sortBy != "" {
		order := "desc"
		if sortOrder == "asc" {
			order = "asc"
		}
		query = query.Order(sortBy + " " + order)
	} else {
		query = query.Order("created_at desc")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query = query.Limit(limit)

	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}
