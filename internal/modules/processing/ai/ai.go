package ai

import (
	"github.com/shiv669/echo-core-go/internal/modules/system/core/configs"
	"github.com/shiv669/echo-core-go/internal/pkg/taskqueue"
)

// Service handles AI analysis operations.
type Service struct {
	cfgSvc  *configs.Service
	taskSvc *taskqueue.Service
}

func NewService(cfgSvc *configs.Service, taskSvc *taskqueue.Service) *Service {
	return &Service{cfgSvc: cfgSvc, taskSvc: taskSvc}
}
