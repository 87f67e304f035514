package domain

import "time"

// Session represents one conversation and its ordered messages.
type Session struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	UpdatedAt       time.Time `json:"updated_at"`
	Messages        []Message `json:"messages"`
	TitleGenerating bool      `json:"is_generating_title,omitempty"`
}

// Message represents a single message in a session.
type Message struct {
	ID              string           `json:"id"`
	Role            Role             `json:"role"`
	Type            MessageType      `json:"type"`
	Text            string           `json:"text"`
	Reasoning       string           `json:"reasoning,omitempty"`
	Mode            ChatMode         `json:"mode,omitempty"`
	Model           string           `json:"model,omitempty"`
	ImageURLs       []string         `json:"image_urls,omitempty"`
	FileAttachments []FileAttachment `json:"file_attachments,omitempty"`
	GradingResult   *GradingResult   `json:"grading_result,omitempty"`
	OCRText         string           `json:"ocr_text,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// FileAttachment is a text file submitted alongside a user message.
type FileAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// GradingResult is the structured evaluation extracted from an assistant reply.
type GradingResult struct {
	Summary      string               `json:"summary"`
	ImageResults []ImageGradingResult `json:"image_grading_result"`
}

// ImageGradingResult carries the per-step feedback for one submitted image.
type ImageGradingResult struct {
	ImageURL string        `json:"image_url"`
	Steps    []GradingStep `json:"steps"`
}

// GradingStep is one evaluated solution step.
type GradingStep struct {
	StepNumber     int    `json:"step_number"`
	StepTitle      string `json:"step_title"`
	IsCorrect      bool   `json:"is_correct"`
	Formula        string `json:"formula,omitempty"`
	Text           string `json:"text,omitempty"`
	Comment        string `json:"comment"`
	Suggestion     string `json:"suggestion,omitempty"`
	CorrectFormula string `json:"correct_formula,omitempty"`
	BBox           BBox   `json:"bbox"`
}

// BBox is a rectangle in percentage coordinates of the source image.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OCRResult is the recognized text for one submitted image.
type OCRResult struct {
	ImageURL string `json:"image_url"`
	Text     string `json:"text"`
}
