package model

import (
	"errors"
	"testing"
)

func textJob() Job {
	return Job{
		ID:            "job-1",
		Stage:         StageReceived,
		Type:          MessageTypeText,
		ClassroomID:   "C1",
		LessonID:      "L1",
		UserID:        "U1",
		ChatSessionID: "S1",
		Content:       "Hello",
	}
}

func audioJob() Job {
	j := textJob()
	j.Type = MessageTypeAudio
	j.Content = ""
	j.AudioURL = "audio/in/1.webm"
	return j
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(j *Job)
		base    func() Job
		wantErr bool
	}{
		{name: "text ok", base: textJob},
		{name: "audio ok", base: audioJob},
		{name: "missing session", base: textJob, mutate: func(j *Job) { j.ChatSessionID = "" }, wantErr: true},
		{name: "missing user", base: textJob, mutate: func(j *Job) { j.UserID = "" }, wantErr: true},
		{name: "missing lesson", base: textJob, mutate: func(j *Job) { j.LessonID = "" }, wantErr: true},
		{name: "missing classroom", base: textJob, mutate: func(j *Job) { j.ClassroomID = "" }, wantErr: true},
		{name: "unknown type", base: textJob, mutate: func(j *Job) { j.Type = "VIDEO" }, wantErr: true},
		{name: "unknown stage", base: textJob, mutate: func(j *Job) { j.Stage = "done" }, wantErr: true},
		{name: "blank text content", base: textJob, mutate: func(j *Job) { j.Content = "   " }, wantErr: true},
		{name: "audio without url", base: audioJob, mutate: func(j *Job) { j.AudioURL = "" }, wantErr: true},
		{name: "transcribed audio without text", base: audioJob, mutate: func(j *Job) { j.Stage = StageTranscribed }, wantErr: true},
		{name: "feedback stage without feedback", base: textJob, mutate: func(j *Job) { j.Stage = StageFeedback }, wantErr: true},
		{name: "text cannot be synthesized", base: textJob, mutate: func(j *Job) {
			j.Stage = StageSynthesized
			j.AIFeedback = "hi"
			j.URL = "u"
		}, wantErr: true},
		{name: "synthesized without url", base: audioJob, mutate: func(j *Job) {
			j.Stage = StageSynthesized
			j.Text = "hi"
			j.AIFeedback = "hello"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := tt.base()
			if tt.mutate != nil {
				tt.mutate(&j)
			}
			err := j.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidJob) {
					t.Fatalf("expected ErrInvalidJob, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestJobTransitionsOnlyAddFields(t *testing.T) {
	j := audioJob()

	transcribed, err := j.WithTranscript("I goed to school")
	if err != nil {
		t.Fatalf("WithTranscript: %v", err)
	}
	if transcribed.AudioURL != j.AudioURL || transcribed.Stage != StageTranscribed {
		t.Fatalf("transcript must keep audio reference and advance stage: %+v", transcribed)
	}
	if transcribed.UserText() != "I goed to school" {
		t.Fatalf("UserText = %q", transcribed.UserText())
	}
	if j.Text != "" {
		t.Fatal("WithTranscript must not mutate the receiver")
	}

	withFeedback, err := transcribed.WithFeedback("Say: I went to school.")
	if err != nil {
		t.Fatalf("WithFeedback: %v", err)
	}
	spoken, err := withFeedback.WithSpeech("http://minio/reply.wav")
	if err != nil {
		t.Fatalf("WithSpeech: %v", err)
	}
	if err := spoken.Validate(); err != nil {
		t.Fatalf("synthesized job should validate: %v", err)
	}
	if spoken.Text == "" || spoken.AIFeedback == "" || spoken.AudioURL == "" {
		t.Fatalf("fields were dropped along the way: %+v", spoken)
	}
}

func TestJobTransitionGuards(t *testing.T) {
	if _, err := textJob().WithTranscript("x"); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("text job transcription should fail, got %v", err)
	}
	if _, err := audioJob().WithTranscript("  "); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("empty transcript should fail, got %v", err)
	}
	if _, err := textJob().WithFeedback(""); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("empty feedback should fail, got %v", err)
	}
	if _, err := textJob().WithFeedback(" \n\t"); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("blank feedback should fail, got %v", err)
	}
	withFeedback, _ := textJob().WithFeedback("ok")
	if _, err := withFeedback.WithSpeech("u"); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("text job cannot carry speech, got %v", err)
	}
}
