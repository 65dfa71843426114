package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyDocumentID = "document_id"
	KeyFilename   = "filename"
	KeyLanguage   = "language"
	KeyRenderer   = "renderer"
	KeyOutcome    = "outcome"
	KeyBatchSize  = "batch_size"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func DocumentID(id string) slog.Attr { return slog.String(KeyDocumentID, id) }
func Filename(name string) slog.Attr { return slog.String(KeyFilename, name) }
func Language(lang string) slog.Attr { return slog.String(KeyLanguage, lang) }
func Renderer(name string) slog.Attr { return slog.String(KeyRenderer, name) }
func Outcome(o string) slog.Attr { return slog.String(KeyOutcome, o) }
func BatchSize(n int) slog.Attr { return slog.Int(KeyBatchSize, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr { return slog.String(KeyRemoteAddr, a) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
