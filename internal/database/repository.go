package database

type PairlinkRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	UpdateAccount(params UpdateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	ListAccounts(excludeAccountId int) ([]Account, error)
	CreateRequest(params CreateRequestParams) (ConnectionRequest, error)
	GetRequestByExternalId(externalId string) (ConnectionRequest, error)
	ResolveRequest(externalId, status string) (bool, error)
	AcceptedRequestExists(accountA, accountB int) (bool, error)
	PendingRequestExists(senderId, receiverId int) (bool, error)
	ListPendingRequests(receiverId int) ([]ConnectionRequest, error)
	CountPendingBySender(receiverId int) ([]PendingCount, error)
	CreateMessage(msg Message) (Message, error)
	GetRoomSeq(roomKey string) (int, error)
	GetMessages(roomKey string, since, before, limit int) ([]Message, error)
	DeleteMessages(roomKey string) error
}
