package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired    ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid     ErrCode = "TOKEN_INVALID"
	ErrTokenExpired     ErrCode = "TOKEN_EXPIRED"
	ErrSessionExpired   ErrCode = "SESSION_EXPIRED"
	ErrSessionForbidden ErrCode = "SESSION_FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrNoActiveSession ErrCode = "NO_ACTIVE_SESSION"
	ErrUnknownQuestion ErrCode = "QUESTION_NOT_IN_EXAM"
	ErrResultNotFound  ErrCode = "RESULT_NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrAlreadyExpired       ErrCode = "ALREADY_EXPIRED"
	ErrUnansweredQuestions  ErrCode = "UNANSWERED_QUESTIONS"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrSubmissionInProgress ErrCode = "SUBMISSION_IN_PROGRESS"
	ErrSessionNotActive     ErrCode = "SESSION_NOT_ACTIVE"
	ErrNoFailedSubmission   ErrCode = "NO_FAILED_SUBMISSION"
	ErrSubmissionFailed     ErrCode = "SUBMISSION_FAILED"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"
	ErrRateLimitExceeded  ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."
	case ErrSessionExpired:
		return "Sesi Anda telah berakhir. Silakan login kembali."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Ujian tidak ditemukan."
	case ErrSessionForbidden:
		return "Sesi ujian ini milik pengguna lain."
	case ErrNoActiveSession:
		return "Tidak ada sesi ujian aktif untuk ujian ini."
	case ErrUnknownQuestion:
		return "Soal ini bukan bagian dari ujian."
	case ErrResultNotFound:
		return "Hasil ujian belum tersedia."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrAlreadyExpired:
		return "Waktu ujian telah habis."
	case ErrUnansweredQuestions:
		return "Masih ada soal yang belum dijawab. Konfirmasi untuk tetap mengumpulkan."
	case ErrAlreadySubmitted:
		return "Ujian sudah dikumpulkan."
	case ErrSubmissionInProgress:
		return "Pengumpulan ujian sedang diproses."
	case ErrSessionNotActive:
		return "Sesi ujian tidak lagi aktif."
	case ErrNoFailedSubmission:
		return "Tidak ada pengumpulan gagal yang dapat diulang."
	case ErrSubmissionFailed:
		return "Gagal mengumpulkan ujian. Silakan coba lagi."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrBackendUnavailable:
		return "Server ujian tidak dapat dihubungi. Silakan coba lagi."
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
