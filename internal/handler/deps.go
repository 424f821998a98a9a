package handler

import (
	"concord/internal/app/gateway"
	"concord/internal/configs"
	"concord/internal/pkg/auth/jwt"
)

// AppDeps carries the wired application objects the handlers need.
type AppDeps struct {
	Gateway  *gateway.Gateway
	Config   *configs.AppConfig
	Verifier *jwt.Verifier
}
