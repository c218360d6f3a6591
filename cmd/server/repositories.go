package main

import (
	"github.com/auditflow/api/internal/infra/postgres"
)

// Repositories holds the PostgreSQL repositories.
type Repositories struct {
	ScanJob     *postgres.ScanJobRepository
	Violation   *postgres.ViolationRepository
	Score       *postgres.ScoreRepository
	Fingerprint *postgres.FingerprintStore
}

// NewRepositories creates all repositories over db.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		ScanJob:     postgres.NewScanJobRepository(db),
		Violation:   postgres.NewViolationRepository(db),
		Score:       postgres.NewScoreRepository(db),
		Fingerprint: postgres.NewFingerprintStore(db),
	}
}
