// Composer and balance handlers.
//
//   - GET/PUT /draft     (input buffer)
//   - GET/PUT /credits   (credit balance)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DraftBody is the composer text.
type DraftBody struct {
	Text string `json:"text" example:"Hello"`
}

// CreditsBody is the credit balance. On PUT, negative values are stored as 0.
type CreditsBody struct {
	Credits *int `json:"credits" binding:"required" example:"100"`
}

// CreditsResponse is the current balance.
type CreditsResponse struct {
	Credits int `json:"credits" example:"99"`
}

// GetDraft godoc
// @ID          getDraft
// @Summary     Composer text
// @Tags        Composer
// @Produce     json
// @Success     200  {object}  handlers.DraftBody
// @Router      /draft [get]
func (h *Handlers) GetDraft(c *gin.Context) {
	ok(c, http.StatusOK, DraftBody{Text: h.chat.Draft()})
}

// PutDraft godoc
// @ID          putDraft
// @Summary     Replace the composer text
// @Tags        Composer
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.DraftBody  true  "Draft"
// @Success     200   {object}  handlers.DraftBody
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /draft [put]
func (h *Handlers) PutDraft(c *gin.Context) {
	var req DraftBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed draft")
		return
	}
	h.chat.SetDraft(req.Text)
	ok(c, http.StatusOK, DraftBody{Text: h.chat.Draft()})
}

// GetCredits godoc
// @ID          getCredits
// @Summary     Credit balance
// @Tags        Credits
// @Produce     json
// @Success     200  {object}  handlers.CreditsResponse
// @Router      /credits [get]
func (h *Handlers) GetCredits(c *gin.Context) {
	ok(c, http.StatusOK, CreditsResponse{Credits: h.state.Rooms.Credits()})
}

// PutCredits godoc
// @ID          putCredits
// @Summary     Override the credit balance
// @Tags        Credits
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreditsBody  true  "Balance"
// @Success     200   {object}  handlers.CreditsResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /credits [put]
func (h *Handlers) PutCredits(c *gin.Context) {
	var req CreditsBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "credits required")
		return
	}
	ok(c, http.StatusOK, CreditsResponse{Credits: h.chat.SetCredits(*req.Credits)})
}
