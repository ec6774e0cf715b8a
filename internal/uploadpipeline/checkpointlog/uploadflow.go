package checkpointlog

// Upload flow events, carried over verbatim from the original flow
// declaration (helpers/checkpoint_logger/flows.py's UploadFlow).
const (
	UploadTaskBegin             = "UPLOAD_TASK_BEGIN"
	NoPendingJobs                = "NO_PENDING_JOBS"
	TooManyRetries               = "TOO_MANY_RETRIES"
	ProcessingBegin               = "PROCESSING_BEGIN"
	InitialProcessingComplete     = "INITIAL_PROCESSING_COMPLETE"
	BatchProcessingComplete       = "BATCH_PROCESSING_COMPLETE"
	ProcessingComplete            = "PROCESSING_COMPLETE"
	SkippingNotification          = "SKIPPING_NOTIFICATION"
	Notified                      = "NOTIFIED"
	NotifLockError                = "NOTIF_LOCK_ERROR"
	NotifNoValidIntegration       = "NOTIF_NO_VALID_INTEGRATION"
	NotifGitClientError           = "NOTIF_GIT_CLIENT_ERROR"
	NotifGitServiceError          = "NOTIF_GIT_SERVICE_ERROR"
	NotifTooManyRetries           = "NOTIF_TOO_MANY_RETRIES"
	NotifStaleHead                = "NOTIF_STALE_HEAD"
	NotifErrorNoReport            = "NOTIF_ERROR_NO_REPORT"
)

// UploadFlow is the declared flow for the Dispatcher/Processor/Finisher/
// Notifier pipeline: its success/failure terminals and subflow latency
// measurements mirror the original UploadFlow exactly.
var UploadFlow = NewFlowSpec(
	"UploadFlow",
	[]string{
		UploadTaskBegin, NoPendingJobs, TooManyRetries, ProcessingBegin,
		InitialProcessingComplete, BatchProcessingComplete, ProcessingComplete,
		SkippingNotification, Notified, NotifLockError, NotifNoValidIntegration,
		NotifGitClientError, NotifGitServiceError, NotifTooManyRetries,
		NotifStaleHead, NotifErrorNoReport,
	},
	[]string{SkippingNotification, Notified, NoPendingJobs, NotifStaleHead},
	[]string{
		TooManyRetries, NotifLockError, NotifNoValidIntegration, NotifGitClientError,
		NotifGitServiceError, NotifTooManyRetries, NotifErrorNoReport,
	},
	[]Subflow{
		{Name: "time_before_processing", Begin: UploadTaskBegin, End: ProcessingBegin},
		{Name: "initial_processing_duration", Begin: ProcessingBegin, End: InitialProcessingComplete},
		{Name: "batch_processing_duration", Begin: InitialProcessingComplete, End: BatchProcessingComplete},
		{Name: "total_processing_duration", Begin: ProcessingBegin, End: ProcessingComplete},
		{Name: "notification_latency", Begin: UploadTaskBegin, End: Notified},
	},
)
