// Package tasks defines the named queues and pub/sub channels the pipeline talks over.
package tasks

const (
	QueueRouteMessage    = "route-message-queue"
	QueueSpeechToText    = "speech-to-text-queue"
	QueueTextToSpeech    = "text-to-speech-queue"
	QueueGenerateAIReply = "generate-ai-feedback-queue"
	QueueSaveUserMessage = "save-incoming-user-message-to-db"
	QueueSaveAIResponse  = "save-ai-response-queue"
)

const (
	ChannelTextMessage  = "text-message-channel"
	ChannelAudioMessage = "audio-message-channel"
)

// AllQueues lists every queue in pipeline order.
func AllQueues() []string {
	return []string{
		QueueRouteMessage,
		QueueSpeechToText,
		QueueGenerateAIReply,
		QueueTextToSpeech,
		QueueSaveUserMessage,
		QueueSaveAIResponse,
	}
}

// DeadLetter returns the topic that receives jobs which exhausted their retries.
func DeadLetter(queue string) string {
	return queue + ".dead-letter"
}
