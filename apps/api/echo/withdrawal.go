package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/user"
	"github.com/elimuhub/elimu/core/withdrawal"
)

type withdrawalApi struct {
	svc        withdrawal.Service
	usrSvc     user.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerWithdrawalAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := withdrawalApi{
		svc:        deps.WithdrawalSvc,
		usrSvc:     deps.UserSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	wg := g.Group("/withdrawals", jwt)
	wg.POST("", api.create)
	wg.GET("", api.query)

	dg := wg.Group("/:id")
	dg.GET("", api.retrieve)

	// settlement workflow
	dg.POST("/approve", api.approve, adminMiddleware())
	dg.POST("/decline", api.decline, adminMiddleware())
	dg.POST("/process", api.process, adminMiddleware())
}

// Handlers

func (api *withdrawalApi) create(ctx echo.Context) error {
	var data withdrawal.NewWithdrawal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewWithdrawal")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	wdr, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating withdrawal")
	}
	return ctx.JSON(http.StatusCreated, wdr)
}

func (api *withdrawalApi) query(ctx echo.Context) error {
	filter := new(withdrawal.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []withdrawal.Withdrawal{})
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return core.NewValidationError(nil, core.FieldError{
			Field: "status", Error: fmt.Sprintf("status must be one of %v", withdrawal.AllStatuses),
		})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	wdrs, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying withdrawals")
	}
	if wdrs == nil {
		wdrs = []withdrawal.Withdrawal{}
	}
	return ctx.JSON(http.StatusOK, wdrs)
}

func (api *withdrawalApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	wdr, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding withdrawal")
	}
	return ctx.JSON(http.StatusOK, wdr)
}

func (api *withdrawalApi) approve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	wdr, err := api.svc.Approve(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving withdrawal")
	}
	return ctx.JSON(http.StatusOK, wdr)
}

func (api *withdrawalApi) decline(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	wdr, err := api.svc.Decline(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "declining withdrawal")
	}
	return ctx.JSON(http.StatusOK, wdr)
}

func (api *withdrawalApi) process(ctx echo.Context) error {
	wdr, err := api.svc.MarkProcessed(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking withdrawal processed")
	}
	return ctx.JSON(http.StatusOK, wdr)
}
