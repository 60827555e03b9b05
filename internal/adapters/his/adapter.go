package his

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/vitalink/platform/internal/appointment"
	"github.com/vitalink/platform/internal/patient"
	"github.com/vitalink/platform/internal/shared/config"
	"github.com/vitalink/platform/internal/shared/metrics"
	"github.com/vitalink/platform/internal/shared/types"
)

// Adapter polls a legacy hospital information system (SQL Server) for
// completed visits and imports them as appointment history. Visit IDs map
// deterministically onto appointment IDs, so repeated polls of the same
// rows are no-ops.
type Adapter struct {
	db           *sql.DB
	cfg          config.HISConfig
	appointments *appointment.Repository
	patients     *patient.Repository

	mu       sync.RWMutex
	running  bool
	lastPoll time.Time
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// visitRow is one completed visit in the legacy schema
type visitRow struct {
	VisitID   string
	MRN       string
	DoctorRef string
	VisitDate time.Time
	VisitTime string
	AgeAtTime int
	Reason    string
	Diagnosis sql.NullString
	Symptoms  sql.NullString
	SeenAt    time.Time
}

// New creates a HIS adapter
func New(cfg config.HISConfig, appointments *appointment.Repository, patients *patient.Repository) *Adapter {
	return &Adapter{
		cfg:          cfg,
		appointments: appointments,
		patients:     patients,
	}
}

// Start opens the connection and launches the poll loop
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.cfg.Host, a.cfg.Port, a.cfg.Database, a.cfg.User, a.cfg.Password)
	if a.cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open HIS database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping HIS database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.cfg.PollInterval)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	return nil
}

// Stop halts polling and closes the connection
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.running = false
	return a.db.Close()
}

// IsConnected reports whether the adapter is running
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Health pings the legacy database
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	db := a.db
	a.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("adapter not started")
	}
	return db.PingContext(ctx)
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			since := a.markPoll()
			if err := a.importSince(ctx, since); err != nil {
				log.Printf("HIS import failed: %v", err)
			}
		}
	}
}

func (a *Adapter) markPoll() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	since := a.lastPoll
	a.lastPoll = time.Now()
	return since
}

// importSince fetches visits recorded after the cutoff and imports them
func (a *Adapter) importSince(ctx context.Context, since time.Time) error {
	query := `
		SELECT VisitId, PatientMRN, DoctorRef, VisitDate, VisitTime,
			PatientAge, VisitReason, Diagnosis, Symptoms, RecordedAt
		FROM dbo.CompletedVisits
		WHERE RecordedAt > @p1
		ORDER BY RecordedAt`

	rows, err := a.db.QueryContext(ctx, query, since)
	if err != nil {
		return fmt.Errorf("failed to query completed visits: %w", err)
	}
	defer rows.Close()

	var imported, skipped int
	for rows.Next() {
		var row visitRow
		err := rows.Scan(&row.VisitID, &row.MRN, &row.DoctorRef, &row.VisitDate, &row.VisitTime,
			&row.AgeAtTime, &row.Reason, &row.Diagnosis, &row.Symptoms, &row.SeenAt)
		if err != nil {
			return fmt.Errorf("failed to scan visit row: %w", err)
		}

		done, err := a.importVisit(ctx, &row)
		if err != nil {
			log.Printf("failed to import HIS visit %s: %v", row.VisitID, err)
			continue
		}
		if done {
			imported++
		} else {
			skipped++
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("visit row iteration failed: %w", err)
	}

	if imported > 0 || skipped > 0 {
		log.Printf("HIS import: %d imported, %d skipped", imported, skipped)
	}
	return nil
}

// importVisit maps one legacy visit onto an appointment record. Returns
// false when the visit was imported before or its patient is unknown.
func (a *Adapter) importVisit(ctx context.Context, row *visitRow) (bool, error) {
	id := types.NewDeterministicID("his-visit", row.VisitID)

	if _, err := a.appointments.FindByID(ctx, id); err == nil {
		return false, nil
	}

	mrn, err := types.ParseMRN(row.MRN)
	if err != nil {
		return false, fmt.Errorf("visit carries invalid MRN: %w", err)
	}

	p, err := a.patients.FindByMRN(ctx, mrn)
	if err != nil {
		// Patient not registered on the platform yet
		return false, nil
	}

	appt, err := appointment.New(
		p.ID,
		types.NewDeterministicID("his-doctor", row.DoctorRef),
		row.VisitDate.Format("2006-01-02"),
		row.VisitTime,
		row.AgeAtTime,
		row.Reason,
		"yes",
		row.SeenAt,
	)
	if err != nil {
		return false, err
	}

	// Rewrite the generated ID with the deterministic one, timeline included
	appt.ID = id
	for i := range appt.Timeline {
		appt.Timeline[i].AppointmentID = id
	}

	prescription := &appointment.Prescription{
		Symptoms:         row.Symptoms.String,
		PrimaryDiagnosis: row.Diagnosis.String,
	}
	if err := appt.Complete(appt.DoctorID, prescription, row.SeenAt); err != nil {
		return false, err
	}

	if err := a.appointments.Save(ctx, appt); err != nil {
		return false, err
	}

	metrics.HISRecordImported()
	return true, nil
}
