// Package domain defines the core entities of the misinformation triage
// pipeline and the validation rules that guard their boundaries.
package domain

import "time"

// Language is one of the four supported locales, or "auto" at request time.
type Language string

const (
	LangHindi   Language = "hi"
	LangTamil   Language = "ta"
	LangKannada Language = "kn"
	LangEnglish Language = "en"
	LangAuto    Language = "auto"
)

// Label is the triage outcome attached to a CrawledItem.
type Label string

const (
	LabelPending     Label = "pending"
	LabelBenign      Label = "benign"
	LabelScam        Label = "scam"
	LabelNeedsReview Label = "needs_review"
)

// Verdict is the enum returned by the check pipeline. Never raw LLM text.
type Verdict string

const (
	VerdictTrue           Verdict = "TRUE"
	VerdictFalse          Verdict = "FALSE"
	VerdictMisleading     Verdict = "MISLEADING"
	VerdictUnverified     Verdict = "UNVERIFIED"
	VerdictPartiallyTrue  Verdict = "PARTIALLY TRUE"
)

// ReviewStatus is the state of a ReviewQueueEntry.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewInReview  ReviewStatus = "in_review"
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewEscalated ReviewStatus = "escalated"
)

// ReviewAction is a reviewer-initiated transition.
type ReviewAction string

const (
	ActionApprove  ReviewAction = "approve"
	ActionReject   ReviewAction = "reject"
	ActionEscalate ReviewAction = "escalate"
)

// Role scopes a User's authority and event-bus subscriptions.
type Role string

const (
	RoleUser     Role = "user"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// CrawledItem is the canonical unit of ingested content.
type CrawledItem struct {
	ID              string
	URL             string
	Domain          string
	RawHTMLPath     string
	ScreenshotPath  string
	CleanText       string
	Language        Language
	LangConfidence  float64
	Translit        bool
	HeuristicScore  float64
	ClassifierScore *float64
	Label           Label
	ImageHashes     []string
	WhoisData       map[string]string
	Metadata        map[string]string
	IngestedAt      time.Time
}

// Vector maps a document id to its vector-store identifier.
type Vector struct {
	ID         string
	DocID      string
	EmbeddingID string
	ExternalID string
	Metadata   map[string]string
}

// ReviewQueueEntry is a human workflow record.
type ReviewQueueEntry struct {
	ID         string
	DocID      string
	AssignedTo string // user id, empty if unassigned
	Status     ReviewStatus
	Priority   int
	Note       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AuditLog is a tamper-evident event record.
type AuditLog struct {
	ID        string
	EventType string
	Payload   map[string]any
	Signature string
	CreatedAt time.Time
}

// Thresholds holds the per-language classifier cutoffs.
type Thresholds struct {
	Hindi   float64
	Tamil   float64
	Kannada float64
	English float64
}

// For looks up the threshold for a language, defaulting to 0.9 for unknown codes.
func (t Thresholds) For(lang Language) float64 {
	switch lang {
	case LangHindi:
		return t.Hindi
	case LangTamil:
		return t.Tamil
	case LangKannada:
		return t.Kannada
	case LangEnglish:
		return t.English
	default:
		return 0.9
	}
}

// DefaultThresholds matches the reference implementation's defaults.
var DefaultThresholds = Thresholds{Hindi: 0.90, Tamil: 0.90, Kannada: 0.90, English: 0.92}

// ModelVersion is the active classifier/embedding/LLM configuration.
type ModelVersion struct {
	ID                string
	ClassifierVersion string
	EmbeddingModel    string
	EmbeddingDim      int
	LLMVersion        string
	Thresholds        Thresholds
	IsActive          bool
	CreatedAt         time.Time
}

// User is the subject of authorization.
type User struct {
	ID       string
	Role     Role
	Verified bool
}

// CrawlMessage is the crawl.items wire contract.
type CrawlMessage struct {
	URL             string  `json:"url"`
	Domain          string  `json:"domain"`
	HTMLPath        string  `json:"html_path,omitempty"`
	ScreenshotPath  string  `json:"screenshot_path,omitempty"`
	Text            string  `json:"text,omitempty"`
	CrawlTimestamp  float64 `json:"crawl_timestamp,omitempty"`
}

// IngestMessage is the ingest.queue wire contract.
type IngestMessage struct {
	URL            string   `json:"url"`
	Language       Language `json:"language"`
	HeuristicScore float64  `json:"heuristic_score"`
	Timestamp      float64  `json:"timestamp"`
}

// CheckRequest is the check RPC input.
type CheckRequest struct {
	ClaimText          string   `json:"claim_text"`
	Language           Language `json:"language"`
	UserID             string   `json:"user_id,omitempty"`
	IncludeTranslation bool     `json:"include_translation,omitempty"`
}

// Evidence is a retrieved nearest-neighbor hit attached to a verdict.
type Evidence struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	Language string  `json:"language"`
	Distance float64 `json:"distance"`
}

// MiniLesson accompanies a FALSE or MISLEADING verdict.
type MiniLesson struct {
	Text string   `json:"mini_lesson"`
	Tips []string `json:"tips"`
	Quiz Quiz     `json:"quiz"`
}

// Quiz is the single comprehension check attached to a mini-lesson.
type Quiz struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// CheckResponse is the check RPC output.
type CheckResponse struct {
	RequestID        string      `json:"request_id"`
	Verdict          Verdict     `json:"verdict"`
	TrustScore       int         `json:"trust_score"`
	Confidence       int         `json:"confidence"`
	Reasons          []string    `json:"reasons"`
	EvidenceList     []string    `json:"evidence_list"`
	ClassifierScore  *float64    `json:"classifier_score,omitempty"`
	RetrievedIDs     []string    `json:"retrieved_ids"`
	LatencyMS        int64       `json:"latency_ms"`
	LanguageDetected Language    `json:"language_detected,omitempty"`
	MiniLesson       *MiniLesson `json:"mini_lesson,omitempty"`
}
