package render

import "github.com/use-agent/pagerender/models"

// Model converts r into the wire response with the page HTML as content.
// Content post-processing and timing are left to the caller.
func (r *Result) Model() *models.RenderResponse {
	cookies := r.Cookies()
	if cookies == nil {
		cookies = []Cookie{}
	}
	return &models.RenderResponse{
		Success:      true,
		URL:          r.URL(),
		FinalURL:     r.FinalURL(),
		StatusCode:   r.Status(),
		Synthetic:    r.Synthetic(),
		Headers:      r.Headers(),
		Request:      r.Request(),
		Cookies:      cookies,
		ScriptResult: r.ScriptResult(),
		Content:      r.Text(),
		Format:       "html",
	}
}
