package service

import (
	"context"

	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/models"
)

type appInfoService struct {
	info models.AppBuildInfo

	logger *logger.Logger
}

// NewAppInfoService returns the build information reporter. The version is
// required; date and commit default to "N/A".
func NewAppInfoService(version, buildDate, buildCommit string, logger *logger.Logger) (AppInfoService, error) {
	if version == "" {
		return nil, ErrVersionIsNotSpecified
	}

	return &appInfoService{
		info:   models.NewAppBuildInfo(version, buildDate, buildCommit),
		logger: logger,
	}, nil
}

func (s *appInfoService) GetAppInfo(ctx context.Context) (models.AppBuildInfo, error) {
	return s.info, ctx.Err()
}
