// Package mocks holds gomock doubles for the service, repository and
// provider ports.
//
// To regenerate after an interface change:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go place-discovery-service/internal/service JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go place-discovery-service/internal/service JobQueue
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_resolver_mock.go place-discovery-service/internal/service CredentialResolver
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=registry_inserter_mock.go place-discovery-service/internal/repository/postgresql RegistryInserter
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=searcher_mock.go place-discovery-service/internal/places Searcher
