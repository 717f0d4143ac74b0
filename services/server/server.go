package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/fleetware/iot-provisioner/core/logger"
	"github.com/fleetware/iot-provisioner/fleet"
	"github.com/fleetware/iot-provisioner/handler"
	"github.com/fleetware/iot-provisioner/provision"
)

// Service holds the configuration for the self-hosted provisioning server
type Service struct {
	ListenAddr   string `env:"LISTEN_ADDR,optional,default=:3000" description:"the address the server listens on"`
	AWSRegion    string `env:"AWS_REGION,required" description:"the AWS region of the IoT registry"`
	AWSKeyID     string `env:"AWS_ACCESS_KEY_ID_OVERRIDE,optional" description:"static AWS key id; the default credential chain is used when empty"`
	AWSSecretKey string `env:"AWS_SECRET_ACCESS_KEY_OVERRIDE,optional" description:"static AWS secret key"`
	IoTPolicy    string `env:"AWS_IOT_POLICY,required" description:"name of the IoT policy attached to every created certificate"`
	FleetAPIURL  string `env:"FLEET_API_URL,required" description:"base URL of the fleet cloud API"`
	FleetAPIKey  string `env:"FLEET_API_KEY,required" description:"session token for the fleet cloud API"`
	LogLevel     string `env:"LOG_LEVEL,optional,default=info" description:"the level used for logger, can be debug, warning, info, error"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	logLevel, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(logLevel)

	options := []func(*config.LoadOptions) error{config.WithRegion(service.AWSRegion)}
	if service.AWSKeyID != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(service.AWSKeyID, service.AWSSecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), options...)
	if err != nil {
		panic(err)
	}

	fleetClient, err := fleet.NewClient(service.FleetAPIURL, service.FleetAPIKey)
	if err != nil {
		panic(err)
	}

	orchestrator := provision.NewOrchestrator(
		provision.NewAWSRegistry(cfg), fleetClient, service.IoTPolicy)

	h := handler.MustNewHandler(&handler.Builder{
		Directory:   fleetClient,
		Provisioner: orchestrator,
	})

	router := mux.NewRouter()
	logger.AddRequestID(router)
	router.Handle("/provision", handlers.CompressHandler(h)).
		Methods(http.MethodPost, http.MethodDelete)

	log.Println("listen on", service.ListenAddr)
	if err := http.ListenAndServe(service.ListenAddr, handlers.RecoveryHandler()(router)); err != nil {
		panic(err)
	}
}
