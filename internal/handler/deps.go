package handler

import (
	"ripplechat/internal/app/directory"
	"ripplechat/internal/app/realtime"
	"ripplechat/internal/app/store"
	"ripplechat/internal/configs"
)

type AppDeps struct {
	Dispatcher *realtime.Dispatcher
	Config     *configs.AppConfig
	Store      store.Store
	Directory  directory.Directory
}
