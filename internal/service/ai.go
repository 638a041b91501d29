package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/therapii/api-server-go/internal/errors"
	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/repository"
)

const (
	defaultCompletionModel = "gpt-4o-mini"
	defaultMaxTokens       = 800
	maxMaxTokens           = 2000
	defaultTemperature     = 0.7
	maxTemperature         = 2.0
)

type CompletionInput struct {
	Messages        []ChatMessage `json:"messages"`
	Model           string        `json:"model"`
	MaxOutputTokens *float64      `json:"maxOutputTokens"`
	MaxTokens       *float64      `json:"max_tokens"`
	Temperature     *float64      `json:"temperature"`
}

type CompletionResult struct {
	Text  string          `json:"text"`
	ID    *string         `json:"id"`
	Model string          `json:"model"`
	Usage json.RawMessage `json:"usage"`
}

type SummaryInput struct {
	TherapistID string            `json:"therapistId"`
	Summary     string            `json:"summary"`
	Transcript  []json.RawMessage `json:"transcript"`
}

type AIService struct {
	client    completer
	settings  repository.SettingsRepository
	users     repository.UserRepository
	summaries repository.SummaryRepository
	envAPIKey string
}

func NewAIService(
	client completer,
	settings repository.SettingsRepository,
	users repository.UserRepository,
	summaries repository.SummaryRepository,
	envAPIKey string,
) *AIService {
	return &AIService{
		client:    client,
		settings:  settings,
		users:     users,
		summaries: summaries,
		envAPIKey: strings.TrimSpace(envAPIKey),
	}
}

func (s *AIService) Complete(ctx context.Context, callerID string, in CompletionInput) (*CompletionResult, error) {
	if callerID == "" {
		return nil, apperrors.Unauthenticated("You must be signed in to contact the AI companion.")
	}

	req, err := buildChatRequest(in)
	if err != nil {
		return nil, err
	}

	apiKey := s.apiKey(ctx)
	if apiKey == "" {
		return nil, apperrors.FailedPrecondition("AI companion not configured. Please ask an admin to configure the OpenAI API key in Admin Settings.")
	}

	resp, err := s.client.ChatCompletion(ctx, apiKey, req)
	if err != nil {
		return nil, completionError(err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if text == "" {
		return nil, apperrors.Internal("OpenAI did not return any message content.")
	}

	result := &CompletionResult{
		Text:  text,
		Model: resp.Model,
		Usage: resp.Usage,
	}
	if resp.ID != "" {
		result.ID = &resp.ID
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	if len(result.Usage) == 0 {
		result.Usage = json.RawMessage("null")
	}
	return result, nil
}

func buildChatRequest(in CompletionInput) (chatRequest, error) {
	if len(in.Messages) == 0 {
		return chatRequest{}, apperrors.InvalidArgument("Expected a non-empty messages array.")
	}

	messages := make([]ChatMessage, 0, len(in.Messages))
	for i, m := range in.Messages {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			return chatRequest{}, apperrors.InvalidArgument(fmt.Sprintf("messages[%d].role must be a non-empty string", i))
		}
		if strings.TrimSpace(m.Content) == "" {
			return chatRequest{}, apperrors.InvalidArgument(fmt.Sprintf("messages[%d].content must be a non-empty string", i))
		}
		messages = append(messages, ChatMessage{Role: role, Content: m.Content})
	}

	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = defaultCompletionModel
	}

	maxTokens := defaultMaxTokens
	raw := in.MaxOutputTokens
	if raw == nil {
		raw = in.MaxTokens
	}
	if raw != nil {
		maxTokens = min(max(int(*raw), 1), maxMaxTokens)
	}

	temperature := defaultTemperature
	if in.Temperature != nil {
		temperature = min(max(*in.Temperature, 0), maxTemperature)
	}

	return chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, nil
}

// apiKey prefers the environment key, then the admin-configured one.
func (s *AIService) apiKey(ctx context.Context) string {
	if s.envAPIKey != "" {
		return s.envAPIKey
	}
	if s.settings == nil {
		return ""
	}

	var cfg model.OpenAIConfig
	found, err := repository.DecodeSetting(ctx, s.settings, model.SettingOpenAIConfig, &cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to load openai_config setting")
		return ""
	}
	if !found {
		return ""
	}
	return strings.TrimSpace(cfg.APIKey)
}

func completionError(err error) error {
	var upstream *UpstreamError
	switch {
	case errors.As(err, &upstream):
		details := map[string]any{"status": upstream.Status}
		if upstream.Status >= 500 {
			return apperrors.Unavailable(upstream.Message).WithDetails(details).WithCause(err)
		}
		return apperrors.FailedPrecondition(upstream.Message).WithDetails(details).WithCause(err)
	case errors.Is(err, errUnreadableResponse):
		return apperrors.Internal("OpenAI returned an unreadable response.").WithCause(err)
	case isTimeout(err):
		return apperrors.Unavailable("The OpenAI request timed out before it could finish. Please try again.").WithCause(err)
	default:
		return apperrors.Unavailable("The connection to OpenAI was interrupted. Please try again in a moment.").WithCause(err)
	}
}

// SaveSummary stores a conversation summary for a patient linked to the
// given therapist and returns its id.
func (s *AIService) SaveSummary(ctx context.Context, patientID string, in SummaryInput) (string, error) {
	if patientID == "" {
		return "", apperrors.Unauthenticated("Sign in required.")
	}

	therapistID := strings.TrimSpace(in.TherapistID)
	summary := strings.TrimSpace(in.Summary)
	if therapistID == "" {
		return "", apperrors.MissingRequired("therapistId")
	}
	if summary == "" {
		return "", apperrors.MissingRequired("summary")
	}

	profile, err := s.users.FindByID(ctx, patientID)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if profile == nil {
		return "", apperrors.FailedPrecondition("User profile not found")
	}
	if !profile.LinkedTo(therapistID) {
		return "", apperrors.PermissionDenied("You are not linked to this therapist.")
	}

	transcript, err := json.Marshal(sanitizeTranscript(in.Transcript))
	if err != nil {
		return "", apperrors.Internal("Failed to save summary").WithCause(err)
	}

	saved, err := s.summaries.Create(ctx, model.CreateSummaryParams{
		PatientID:          patientID,
		TherapistID:        therapistID,
		Summary:            summary,
		Transcript:         transcript,
		ShareWithTherapist: profile.SharesSummaries(),
	})
	if err != nil {
		return "", apperrors.Database(err)
	}

	log.Info().
		Str("summaryId", saved.ID).
		Str("patientId", patientID).
		Bool("shared", saved.ShareWithTherapist).
		Msg("conversation summary saved")
	return saved.ID, nil
}

// sanitizeTranscript keeps only object entries, reduced to string role and
// text, and drops entries without text.
func sanitizeTranscript(raw []json.RawMessage) []model.TranscriptEntry {
	out := make([]model.TranscriptEntry, 0, len(raw))
	for _, part := range raw {
		var fields map[string]any
		if err := json.Unmarshal(part, &fields); err != nil || fields == nil {
			continue
		}
		role, _ := fields["role"].(string)
		text, _ := fields["text"].(string)
		if text == "" {
			continue
		}
		out = append(out, model.TranscriptEntry{Role: role, Text: text})
	}
	return out
}
