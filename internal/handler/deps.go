package handler

import (
	"gravechat/internal/app/db"
	"gravechat/internal/app/relay"
	"gravechat/internal/configs"
)

type AppDeps struct {
	Hub    *relay.Hub
	Store  *db.Store
	Config *configs.AppConfig
}
