package types

// GenerateRequest is the body of POST /api/generate and POST /api/render.
type GenerateRequest struct {
	Prompt  string `json:"prompt" binding:"required,min=1"`
	Quality string `json:"quality"`
}

// GenerateResponse acknowledges an accepted async generation request.
type GenerateResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step"`
}

// RenderResponse is the synchronous render path's success payload.
type RenderResponse struct {
	VideoURL  string `json:"video_url"`
	Code      string `json:"code"`
	SceneName string `json:"scene_name"`
	Status    string `json:"status"`
}

// ExampleItem describes one pre-rendered sample animation.
type ExampleItem struct {
	Title        string `json:"title"`
	Prompt       string `json:"prompt"`
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Duration     string `json:"duration"`
}

type ExampleResponse struct {
	Examples []ExampleItem `json:"examples"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
