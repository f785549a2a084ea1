package mwaa

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	awsmwaa "github.com/aws/aws-sdk-go-v2/service/mwaa"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/tyemirov/dagwatch/internal/config"
	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

const (
	regionParameterConstant                   = "region"
	awsConfigurationLoadErrorTemplateConstant = "unable to load AWS configuration: %w"
	defaultRoleSessionNameConstant            = "dagwatch"
)

// NewWebLoginTokenClient builds an MWAA service client for the configured region.
// When a role ARN is configured the default credential chain is used to assume that role first.
func NewWebLoginTokenClient(executionContext context.Context, configuration config.MWAAConfiguration) (*awsmwaa.Client, error) {
	if config.IsAbsent(configuration.Region) {
		return nil, auditerrors.MissingParameters(mwaaSubjectConstant, []string{regionParameterConstant})
	}

	awsConfiguration, loadError := awsconfig.LoadDefaultConfig(executionContext, awsconfig.WithRegion(strings.TrimSpace(configuration.Region)))
	if loadError != nil {
		return nil, auditerrors.Wrap(auditerrors.OperationCredentialAcquire, configuration.Region, auditerrors.ErrAuthentication, fmt.Errorf(awsConfigurationLoadErrorTemplateConstant, loadError))
	}

	if !config.IsAbsent(configuration.RoleARN) {
		roleSessionName := strings.TrimSpace(configuration.RoleSessionName)
		if len(roleSessionName) == 0 {
			roleSessionName = defaultRoleSessionNameConstant
		}
		assumeRoleProvider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsConfiguration), strings.TrimSpace(configuration.RoleARN), func(options *stscreds.AssumeRoleOptions) {
			options.RoleSessionName = roleSessionName
		})
		awsConfiguration.Credentials = aws.NewCredentialsCache(assumeRoleProvider)
	}

	return awsmwaa.NewFromConfig(awsConfiguration), nil
}
