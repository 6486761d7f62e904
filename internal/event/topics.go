package event

import "github.com/dshills/stylesync/internal/event/topic"

// Settings store topics.
const (
	TopicSettingsChanged       topic.Topic = "settings:changed"
	TopicSettingsSave          topic.Topic = "settings:save"
	TopicSettingsSaved         topic.Topic = "settings:saved"
	TopicSettingsSaveFailed    topic.Topic = "settings:saveFailed"
	TopicSettingsReset         topic.Topic = "settings:reset"
	TopicSettingsResetComplete topic.Topic = "settings:resetComplete"
	TopicSettingsLoaded        topic.Topic = "settings:loaded"
	TopicSettingsUndo          topic.Topic = "settings:undo"
	TopicSettingsRedo          topic.Topic = "settings:redo"
)

// Apply-style operation topics.
const (
	TopicPaletteApply        topic.Topic = "palette:apply"
	TopicPaletteApplyStarted topic.Topic = "palette:applyStarted"
	TopicPaletteApplied      topic.Topic = "palette:applied"
	TopicPaletteApplyFailed  topic.Topic = "palette:applyFailed"

	TopicTemplateApply        topic.Topic = "template:apply"
	TopicTemplateApplyStarted topic.Topic = "template:applyStarted"
	TopicTemplateApplied      topic.Topic = "template:applied"
	TopicTemplateApplyFailed  topic.Topic = "template:applyFailed"
)

// AI suggestion topics.
const (
	TopicAISuggestionReceived topic.Topic = "ai:suggestion:received"
	TopicAISuggestionApplied  topic.Topic = "ai:suggestion:applied"
	TopicAISuggestionRejected topic.Topic = "ai:suggestion:rejected"
	TopicAISuggestionLoading  topic.Topic = "ai:suggestion:loading"
	TopicAISuggestionError    topic.Topic = "ai:suggestion:error"
	TopicAISettingsChanged    topic.Topic = "ai:settings:changed"
)

// Collaboration topics.
const (
	TopicCollabEnabled        topic.Topic = "collaboration:enabled"
	TopicCollabDisabled       topic.Topic = "collaboration:disabled"
	TopicCollabRemoteChange   topic.Topic = "collaboration:remoteChange"
	TopicCollabPresenceUpdate topic.Topic = "collaboration:presenceUpdate"
	TopicCollabUserJoined     topic.Topic = "collaboration:userJoined"
	TopicCollabUserLeft       topic.Topic = "collaboration:userLeft"
	TopicCollabConflict       topic.Topic = "collaboration:conflict"
)

// Persistent channel topics.
const (
	TopicChannelConnected    topic.Topic = "channel:connected"
	TopicChannelDisconnected topic.Topic = "channel:disconnected"
	TopicChannelReconnecting topic.Topic = "channel:reconnecting"
	TopicChannelFailed       topic.Topic = "channel:failed"
)

// TopicErrorOccurred carries handler failures and terminal request errors.
const TopicErrorOccurred topic.Topic = "error:occurred"
