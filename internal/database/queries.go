package database

import (
	"database/sql"
	"time"
)

func (db *PgPairlinkRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, avatar_ref",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.AvatarRef,
	)

	return a, err
}

func (db *PgPairlinkRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, avatar_ref = $4, updated_at = $5 "+
			"WHERE id = $1 RETURNING id, username, email, avatar_ref, created_at, updated_at",
		params.AccountId,
		params.Username,
		params.PasswordHash,
		params.AvatarRef,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.AvatarRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgPairlinkRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, avatar_ref, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.AvatarRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgPairlinkRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, avatar_ref, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.AvatarRef,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgPairlinkRepository) ListAccounts(excludeAccountId int) ([]Account, error) {
	rows, err := db.conn.Query(
		"SELECT id, username, email, avatar_ref FROM accounts WHERE id != $1 ORDER BY username",
		excludeAccountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err = rows.Scan(&a.Id, &a.Username, &a.EmailAddress, &a.AvatarRef); err != nil {
			break
		}

		accounts = append(accounts, a)
	}

	return accounts, err
}

func (db *PgPairlinkRepository) CreateRequest(params CreateRequestParams) (ConnectionRequest, error) {
	res := db.conn.QueryRow(
		"INSERT INTO connection_requests (external_id, sender_id, receiver_id, status, created_at) "+
			"VALUES ($1, $2, $3, 'pending', $4) RETURNING id, external_id, sender_id, receiver_id, status, created_at",
		params.ExternalId,
		params.SenderId,
		params.ReceiverId,
		time.Now().UTC(),
	)

	var req ConnectionRequest
	err := res.Scan(
		&req.Id,
		&req.ExternalId,
		&req.SenderId,
		&req.ReceiverId,
		&req.Status,
		&req.CreatedAt,
	)

	return req, err
}

func (db *PgPairlinkRepository) GetRequestByExternalId(externalId string) (ConnectionRequest, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, sender_id, receiver_id, status, created_at, resolved_at FROM connection_requests "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var req ConnectionRequest
	var resolvedAt sql.NullTime
	err := row.Scan(
		&req.Id,
		&req.ExternalId,
		&req.SenderId,
		&req.ReceiverId,
		&req.Status,
		&req.CreatedAt,
		&resolvedAt,
	)
	if resolvedAt.Valid {
		req.ResolvedAt = resolvedAt.Time
	}

	return req, err
}

// ResolveRequest transitions a pending request to status. The WHERE
// clause makes the transition conditional, so a request already resolved
// stays as it is and the caller is told nothing changed.
func (db *PgPairlinkRepository) ResolveRequest(externalId, status string) (bool, error) {
	res, err := db.conn.Exec(
		"UPDATE connection_requests SET status = $2, resolved_at = $3 "+
			"WHERE external_id = $1 AND status = 'pending'",
		externalId,
		status,
		time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *PgPairlinkRepository) AcceptedRequestExists(accountA, accountB int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT id FROM connection_requests WHERE status = 'accepted' "+
			"AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)) LIMIT 1",
		accountA,
		accountB,
	)

	var id int
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *PgPairlinkRepository) PendingRequestExists(senderId, receiverId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT id FROM connection_requests WHERE status = 'pending' "+
			"AND sender_id = $1 AND receiver_id = $2 LIMIT 1",
		senderId,
		receiverId,
	)

	var id int
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *PgPairlinkRepository) ListPendingRequests(receiverId int) ([]ConnectionRequest, error) {
	rows, err := db.conn.Query(
		"SELECT id, external_id, sender_id, receiver_id, status, created_at FROM connection_requests "+
			"WHERE receiver_id = $1 AND status = 'pending' ORDER BY created_at",
		receiverId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests = make([]ConnectionRequest, 0)
	for rows.Next() {
		var req ConnectionRequest
		if err = rows.Scan(&req.Id, &req.ExternalId, &req.SenderId, &req.ReceiverId, &req.Status, &req.CreatedAt); err != nil {
			break
		}

		requests = append(requests, req)
	}

	return requests, err
}

func (db *PgPairlinkRepository) CountPendingBySender(receiverId int) ([]PendingCount, error) {
	rows, err := db.conn.Query(
		"SELECT sender_id, COUNT(*) FROM connection_requests "+
			"WHERE receiver_id = $1 AND status = 'pending' GROUP BY sender_id",
		receiverId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts = make([]PendingCount, 0)
	for rows.Next() {
		var pc PendingCount
		if err = rows.Scan(&pc.SenderId, &pc.Count); err != nil {
			break
		}

		counts = append(counts, pc)
	}

	return counts, err
}

func (db *PgPairlinkRepository) CreateMessage(msg Message) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (external_id, room_key, seq_id, sender_id, content, image_ref, message_type, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id",
		msg.ExternalId,
		msg.RoomKey,
		msg.SeqId,
		msg.SenderId,
		msg.Content,
		msg.ImageRef,
		msg.Type,
		msg.CreatedAt,
	)

	err := res.Scan(&msg.Id)
	return msg, err
}

func (db *PgPairlinkRepository) GetRoomSeq(roomKey string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COALESCE(MAX(seq_id), 0) FROM messages WHERE room_key = $1",
		roomKey,
	)

	var seq int
	err := row.Scan(&seq)
	return seq, err
}

func (db *PgPairlinkRepository) GetMessages(roomKey string, since, before, limit int) ([]Message, error) {
	var upper, lower int = 1<<31 - 1, 0
	if before > 0 {
		upper = before - 1
	}

	if since > 0 {
		lower = since
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, external_id, room_key, seq_id, sender_id, content, image_ref, message_type, created_at FROM messages "+
			"WHERE room_key = $1 AND seq_id BETWEEN $2 AND $3 ORDER BY seq_id LIMIT $4",
		roomKey,
		lower,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.ExternalId, &msg.RoomKey, &msg.SeqId, &msg.SenderId, &msg.Content, &msg.ImageRef, &msg.Type, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}

	return messages, err
}

func (db *PgPairlinkRepository) DeleteMessages(roomKey string) error {
	_, err := db.conn.Exec("DELETE FROM messages WHERE room_key = $1", roomKey)

	return err
}
