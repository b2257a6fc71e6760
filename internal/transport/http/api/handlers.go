package apihttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"arbiter/internal/governor"
	"arbiter/internal/logger"
	"arbiter/internal/store/decisionlog"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
	recentTrades         = 20
)

type handlers struct {
	cfg ServerConfig
}

func (h *handlers) register(group *gin.RouterGroup) {
	group.GET("/session", h.getSession)
	group.POST("/session", h.postSession)
	group.POST("/agent/loop", h.runLoop)
	group.GET("/portfolio", h.getPortfolio)
	group.GET("/decisions", h.listDecisions)
	group.POST("/account/reset", h.resetAccount)
	group.GET("/judge/:symbol", h.previewJudge)
}

func (h *handlers) getSession(c *gin.Context) {
	st, err := h.cfg.Agent.Session(c.Request.Context(), h.cfg.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(st))
}

func (h *handlers) postSession(c *gin.Context) {
	var u governor.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	st, err := h.cfg.Agent.Configure(c.Request.Context(), h.cfg.UserID, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(st))
}

func (h *handlers) runLoop(c *gin.Context) {
	rep, err := h.cfg.Agent.RunLoopOnce(c.Request.Context(), h.cfg.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) getPortfolio(c *gin.Context) {
	ctx := c.Request.Context()
	snap, err := h.cfg.Portfolio.GetPortfolio(ctx, h.cfg.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	trades, err := h.cfg.Portfolio.Trades(ctx, h.cfg.UserID, recentTrades)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"portfolio": snap.Portfolio,
		"positions": snap.Positions,
		"trades":    trades,
	})
}

func (h *handlers) listDecisions(c *gin.Context) {
	if h.cfg.Decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultDecisionLimit)))
	if limit <= 0 {
		limit = defaultDecisionLimit
	}
	if limit > maxDecisionLimit {
		limit = maxDecisionLimit
	}
	entries, err := h.cfg.Decisions.List(c.Request.Context(), decisionlog.Query{
		UserID: h.cfg.UserID,
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Limit:  limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []decisionlog.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": entries, "limit": limit})
}

func (h *handlers) resetAccount(c *gin.Context) {
	st, err := h.cfg.Agent.Reset(c.Request.Context(), h.cfg.UserID, h.cfg.Resetters...)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account reset.", "session": sessionView(st)})
}

func (h *handlers) previewJudge(c *gin.Context) {
	rep, err := h.cfg.Agent.Preview(c.Request.Context(), h.cfg.UserID, c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// fail 把校验错误映射为 400，其余一律 500。
func (h *handlers) fail(c *gin.Context, err error) {
	var verr *governor.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
		return
	}
	logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type sessionResponse struct {
	governor.State
	TradesRemaining int `json:"trades_remaining"`
}

func sessionView(st governor.State) sessionResponse {
	if st.Wishlist == nil {
		st.Wishlist = []string{}
	}
	return sessionResponse{State: st, TradesRemaining: st.TradesRemaining()}
}
