package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ujumbe/core/messaging"
	"github.com/trezcool/ujumbe/core/user"
)

var threadIDParam = "threadId"

type messagingApi struct {
	svc      messaging.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerMessagingAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc messaging.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := messagingApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	mg := g.Group("/messages", jwt)
	mg.GET("", api.list)
	mg.POST("", api.send)
}

// Handlers

// list returns the requester's threads; with the threadId query param it
// returns that single thread and its full message log instead.
func (api *messagingApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if raw := ctx.QueryParam(threadIDParam); raw != "" {
		threadID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return messaging.ErrThreadNotFound
		}
		thr, msgs, err := api.svc.GetThread(ctx.Request().Context(), threadID, usr)
		if err != nil {
			return errors.Wrap(err, "getting thread")
		}
		if msgs == nil {
			msgs = []messaging.Message{}
		}
		return ctx.JSON(http.StatusOK, ThreadDetailResponse{Success: true, Thread: thr, Messages: msgs})
	}

	threads, err := api.svc.ListThreads(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing threads")
	}
	if threads == nil {
		threads = []messaging.Thread{}
	}
	return ctx.JSON(http.StatusOK, ThreadListResponse{Success: true, Threads: threads})
}

// send starts a conversation or replies into an existing thread.
func (api *messagingApi) send(ctx echo.Context) error {
	var data messaging.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	thr, msg, err := api.svc.Send(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, SendMessageResponse{Success: true, Thread: thr, Message: msg})
}

type (
	ThreadListResponse struct {
		Success bool               `json:"success"`
		Threads []messaging.Thread `json:"threads"`
	}

	ThreadDetailResponse struct {
		Success  bool                `json:"success"`
		Thread   messaging.Thread    `json:"thread"`
		Messages []messaging.Message `json:"messages"`
	}

	SendMessageResponse struct {
		Success bool              `json:"success"`
		Thread  messaging.Thread  `json:"thread"`
		Message messaging.Message `json:"message"`
	}
)
