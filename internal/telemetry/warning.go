package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a Warning's urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Category groups warnings by the subsystem that raised them.
type Category string

const (
	CategoryQueue       Category = "queue"
	CategoryCache       Category = "cache"
	CategoryRole        Category = "role"
	CategoryTransport   Category = "transport"
	CategoryGateway     Category = "gateway"
	CategoryPinnedStandby Category = "pinned_standby"
)

// Warning is a single operational anomaly record.
type Warning struct {
	ID            string    `json:"id"`
	Category      Category  `json:"category"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	Acknowledged  bool      `json:"acknowledged"`
}

// WarningService records and serves operational warnings.
type WarningService interface {
	AddWarning(category Category, severity Severity, message, source string) Warning
	GetAllWarnings() []Warning
	GetWarningsBySeverity(severity Severity) []Warning
	GetUnacknowledgedWarnings() []Warning
	AcknowledgeWarning(id string) bool
	ClearAllWarnings()
	ClearOldWarnings(hoursOld float64) int
}

// MaxWarnings caps the in-memory ring; oldest entries are evicted first.
const MaxWarnings = 1000

// InMemoryWarningService is the default WarningService, adapted from the
// teacher's router warning service for the relay's own category/severity
// vocabulary.
type InMemoryWarningService struct {
	mu       sync.RWMutex
	warnings []Warning
}

// NewInMemoryWarningService returns an empty service.
func NewInMemoryWarningService() *InMemoryWarningService {
	return &InMemoryWarningService{}
}

func (s *InMemoryWarningService) AddWarning(category Category, severity Severity, message, source string) Warning {
	w := Warning{
		ID:        uuid.NewString(),
		Category:  category,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
		Source:    source,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, w)
	if len(s.warnings) > MaxWarnings {
		s.warnings = s.warnings[len(s.warnings)-MaxWarnings:]
	}
	return w
}

func (s *InMemoryWarningService) GetAllWarnings() []Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Warning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

func (s *InMemoryWarningService) GetWarningsBySeverity(severity Severity) []Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Warning
	for _, w := range s.warnings {
		if w.Severity == severity {
			out = append(out, w)
		}
	}
	return out
}

func (s *InMemoryWarningService) GetUnacknowledgedWarnings() []Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Warning
	for _, w := range s.warnings {
		if !w.Acknowledged {
			out = append(out, w)
		}
	}
	return out
}

func (s *InMemoryWarningService) AcknowledgeWarning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.warnings {
		if s.warnings[i].ID == id {
			s.warnings[i].Acknowledged = true
			return true
		}
	}
	return false
}

func (s *InMemoryWarningService) ClearAllWarnings() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = nil
}

func (s *InMemoryWarningService) ClearOldWarnings(hoursOld float64) int {
	cutoff := time.Now().Add(-time.Duration(hoursOld * float64(time.Hour)))

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.warnings[:0]
	removed := 0
	for _, w := range s.warnings {
		if w.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, w)
	}
	s.warnings = kept
	return removed
}
