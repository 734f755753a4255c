package database

import (
	"github.com/stretchr/testify/mock"
)

type MockPairlinkRepository struct {
	mock.Mock
}

func (m *MockPairlinkRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockPairlinkRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockPairlinkRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockPairlinkRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockPairlinkRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockPairlinkRepository) ListAccounts(excludeAccountId int) ([]Account, error) {
	args := m.Called(excludeAccountId)
	return args.Get(0).([]Account), args.Error(1)
}
func (m *MockPairlinkRepository) CreateRequest(params CreateRequestParams) (ConnectionRequest, error) {
	args := m.Called(params)
	return args.Get(0).(ConnectionRequest), args.Error(1)
}
func (m *MockPairlinkRepository) GetRequestByExternalId(externalId string) (ConnectionRequest, error) {
	args := m.Called(externalId)
	return args.Get(0).(ConnectionRequest), args.Error(1)
}
func (m *MockPairlinkRepository) ResolveRequest(externalId, status string) (bool, error) {
	args := m.Called(externalId, status)
	return args.Bool(0), args.Error(1)
}
func (m *MockPairlinkRepository) AcceptedRequestExists(accountA, accountB int) (bool, error) {
	args := m.Called(accountA, accountB)
	return args.Bool(0), args.Error(1)
}
func (m *MockPairlinkRepository) PendingRequestExists(senderId, receiverId int) (bool, error) {
	args := m.Called(senderId, receiverId)
	return args.Bool(0), args.Error(1)
}
func (m *MockPairlinkRepository) ListPendingRequests(receiverId int) ([]ConnectionRequest, error) {
	args := m.Called(receiverId)
	return args.Get(0).([]ConnectionRequest), args.Error(1)
}
func (m *MockPairlinkRepository) CountPendingBySender(receiverId int) ([]PendingCount, error) {
	args := m.Called(receiverId)
	return args.Get(0).([]PendingCount), args.Error(1)
}
func (m *MockPairlinkRepository) CreateMessage(msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockPairlinkRepository) GetRoomSeq(roomKey string) (int, error) {
	args := m.Called(roomKey)
	return args.Int(0), args.Error(1)
}
func (m *MockPairlinkRepository) GetMessages(roomKey string, since, before, limit int) ([]Message, error) {
	args := m.Called(roomKey, since, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockPairlinkRepository) DeleteMessages(roomKey string) error {
	args := m.Called(roomKey)
	return args.Error(0)
}
