package mwaa_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/dagwatch/internal/config"
	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
	"github.com/tyemirov/dagwatch/internal/mwaa"
)

func isolateAWSEnvironment(testInstance *testing.T) {
	testInstance.Helper()
	temporaryDirectory := testInstance.TempDir()
	testInstance.Setenv("AWS_CONFIG_FILE", filepath.Join(temporaryDirectory, "config"))
	testInstance.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(temporaryDirectory, "credentials"))
	testInstance.Setenv("AWS_PROFILE", "")
	testInstance.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	testInstance.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
}

func TestNewWebLoginTokenClientRequiresRegion(testInstance *testing.T) {
	client, clientError := mwaa.NewWebLoginTokenClient(context.Background(), config.MWAAConfiguration{Region: "NULL", Environment: "qas"})
	require.Nil(testInstance, client)
	require.ErrorIs(testInstance, clientError, auditerrors.ErrConfiguration)
	require.EqualError(testInstance, clientError, "configuration.validate[airflow.mwaa]: missing required parameters: region")
}

func TestNewWebLoginTokenClientConfiguresCredentials(testInstance *testing.T) {
	testCases := []struct {
		name              string
		configuration     config.MWAAConfiguration
		expectAssumedRole bool
	}{
		{
			name:          "default_chain",
			configuration: config.MWAAConfiguration{Region: "eu-west-1", Environment: "qas"},
		},
		{
			name:              "assumed_role",
			configuration:     config.MWAAConfiguration{Region: "eu-west-1", Environment: "qas", RoleARN: "arn:aws:iam::123456789012:role/audit"},
			expectAssumedRole: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			isolateAWSEnvironment(testInstance)

			client, clientError := mwaa.NewWebLoginTokenClient(context.Background(), testCase.configuration)
			require.NoError(testInstance, clientError)
			require.NotNil(testInstance, client)

			options := client.Options()
			require.Equal(testInstance, "eu-west-1", options.Region)

			credentialsCache, isCache := options.Credentials.(*aws.CredentialsCache)
			assumesRole := isCache && credentialsCache.IsCredentialsProvider(&stscreds.AssumeRoleProvider{})
			require.Equal(testInstance, testCase.expectAssumedRole, assumesRole)
		})
	}
}
