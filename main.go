package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nholding/lifting-book/internal/config"
	"github.com/nholding/lifting-book/internal/logger"
	"github.com/nholding/lifting-book/internal/plan/repository"
	"github.com/nholding/lifting-book/internal/platform/awsclient"
	"github.com/nholding/lifting-book/internal/utils"
)

func main() {
	log := logger.Get()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	awsCfg := &awsclient.Config{
		Profile:      cfg.Profile,
		Region:       cfg.Region,
		S3BucketName: cfg.ApprovalBucket,
		DBEndpoint:   cfg.DBEndpoint,
		DBUser:       cfg.DBUser,
		DBName:       cfg.DBName,
		DBPort:       cfg.DBPort,
	}
	clients, err := awsclient.NewClients(ctx, awsCfg)
	if err != nil {
		log.WithError(err).Error("AWS clients unavailable")
		os.Exit(1)
	}

	ids := utils.ULIDProvider{}
	gateway := repository.NewRdsPlanRepositoryWithDB(clients.RDS.Client, ids)

	log.WithFields(logrus.Fields{
		"debounce": cfg.AutosaveDebounce.String(),
		"bucket":   cfg.ApprovalBucket,
	}).Info("lifting book engine ready")

	// Smoke check against a real quarterly plan id, dev convenience only.
	if len(os.Args) > 1 {
		entries, err := gateway.ListByQuarterlyPlan(ctx, os.Args[1])
		if err != nil {
			log.WithError(err).Error("smoke check failed")
			os.Exit(1)
		}
		log.WithFields(logrus.Fields{
			"plan": os.Args[1],
			"rows": len(entries),
		}).Info("quarterly plan loaded")
	}
}
