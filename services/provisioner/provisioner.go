package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/fleetware/iot-provisioner/core/logger"
	"github.com/fleetware/iot-provisioner/fleet"
	"github.com/fleetware/iot-provisioner/handler"
	"github.com/fleetware/iot-provisioner/provision"
)

// Service holds the configuration for the Lambda provisioner
type Service struct {
	AWSRegion    string `env:"AWS_REGION,optional" description:"the AWS region of the IoT registry; defaults to the Lambda's own region"`
	AWSKeyID     string `env:"AWS_ACCESS_KEY_ID_OVERRIDE,optional" description:"static AWS key id, for running outside a Lambda role"`
	AWSSecretKey string `env:"AWS_SECRET_ACCESS_KEY_OVERRIDE,optional" description:"static AWS secret key, for running outside a Lambda role"`
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

	options := []func(*config.LoadOptions) error{}
	if service.AWSRegion != "" {
		options = append(options, config.WithRegion(service.AWSRegion))
	}
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

	lambda.Start(h.HandleLambda)
}
