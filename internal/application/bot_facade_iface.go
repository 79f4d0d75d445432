package application

import (
	"context"

	"telegram-parts-broker/internal/domain/model"
	"telegram-parts-broker/internal/usecase"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----

type DialogueUseCaseIface interface {
	StartSearch(ctx context.Context, actor model.Actor) (*usecase.Prompt, error)
	HandleCallback(ctx context.Context, actor model.Actor, data string) (*usecase.Prompt, error)
	HandleText(ctx context.Context, actor model.Actor, text string) (*usecase.Prompt, error)
	StartSellerResponse(ctx context.Context, actor model.Actor, command string) (*usecase.Prompt, error)
	Cancel(ctx context.Context, actor model.Actor) (*usecase.Prompt, error)
}

type RequestUseCaseIface interface {
	Pending(ctx context.Context, buyerID int64) (*model.PartRequest, error)
	Withdraw(ctx context.Context, buyerID int64) error
}

type MiniAppUseCaseIface interface {
	Submit(ctx context.Context, actor model.Actor, raw []byte, channel string) (*model.DispatchReport, error)
}

type DirectoryIface interface {
	Reload(ctx context.Context) error
	All() []*model.Seller
}

var (
	_ DialogueUseCaseIface = (*usecase.DialogueUseCase)(nil)
	_ RequestUseCaseIface  = (*usecase.RouterUseCase)(nil)
	_ MiniAppUseCaseIface  = (*usecase.MiniAppUseCase)(nil)
	_ DirectoryIface       = (*usecase.DirectoryUseCase)(nil)
)
