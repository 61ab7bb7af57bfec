package pebblestore

import "fmt"

// Key schema: one colon-delimited prefix per table, decimal ids
// zero-padded to 20 digits so lexicographic byte order matches numeric
// order for prefix scans and range iteration.
const (
	prefixUser        = "user:"
	prefixUserByEmail = "user_email:"
	prefixAccount     = "acct:"
	prefixBalance     = "bal:"
	prefixOrder       = "ord:"
	prefixTrade       = "trade:"
	prefixTx          = "tx:"
	prefixAudit       = "audit:"
	prefixSeq         = "seq:"
)

func idKey(prefix string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

func emailKey(email string) []byte {
	return []byte(prefixUserByEmail + email)
}

func balanceKey(accountID int64, asset string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixBalance, accountID, asset))
}

func seqKey(table string) []byte {
	return []byte(prefixSeq + table)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan by
// incrementing the prefix's last byte.
func keyUpperBound(prefix string) []byte {
	bound := []byte(prefix)
	bound[len(bound)-1]++
	return bound
}
