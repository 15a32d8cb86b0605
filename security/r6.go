package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/wudi/charterkit/ir/raw"
)

// hardenedHash is the iterated SHA-2/AES hash of revision 6. Revision 5
// uses a single SHA-256.
func hardenedHash(pwd, salt, udata []byte, r int) []byte {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	first := sha256.New()
	first.Write(pwd)
	first.Write(salt)
	first.Write(udata)
	k := first.Sum(nil)
	if r == 5 {
		return k
	}
	for round := 1; ; round++ {
		seq := make([]byte, 0, len(pwd)+len(k)+len(udata))
		seq = append(seq, pwd...)
		seq = append(seq, k...)
		seq = append(seq, udata...)
		k1 := bytes.Repeat(seq, 64)

		block, _ := aes.NewCipher(k[:16])
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if round >= 64 && int(e[len(e)-1]) <= round-32 {
			break
		}
	}
	return k[:32]
}

func authenticateR6(pwd, o, u, oe, ue []byte, r int) ([]byte, bool, error) {
	if len(o) < 48 || len(u) < 48 || len(oe) < 32 || len(ue) < 32 {
		return nil, false, fmt.Errorf("%w: short AES-256 entries", ErrUnsupportedEncryption)
	}
	u48 := u[:48]
	if bytes.Equal(hardenedHash(pwd, o[32:40], u48, r), o[:32]) {
		key, err := unwrapKey(hardenedHash(pwd, o[40:48], u48, r), oe[:32])
		return key, true, err
	}
	if bytes.Equal(hardenedHash(pwd, u[32:40], nil, r), u[:32]) {
		key, err := unwrapKey(hardenedHash(pwd, u[40:48], nil, r), ue[:32])
		return key, false, err
	}
	return nil, false, ErrBadPassword
}

// unwrapKey decrypts /UE or /OE: AES-256 CBC, zero IV, no padding.
func unwrapKey(kek, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(wrapped))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, wrapped)
	return out, nil
}

func wrapKey(kek, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(key))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, key)
	return out, nil
}

// Params describes the encryption applied by the writer.
type Params struct {
	UserPassword  string
	OwnerPassword string
	Permissions   int32
	Revision      int // 4 (AES-128) or 6 (AES-256)
}

// DefaultPermissions allows printing and copying.
const DefaultPermissions int32 = -3904

// Setup creates an /Encrypt dictionary and the matching handler.
func Setup(p Params, fileID []byte) (*raw.DictObj, *Handler, error) {
	if p.OwnerPassword == "" {
		p.OwnerPassword = p.UserPassword
	}
	if p.Permissions == 0 {
		p.Permissions = DefaultPermissions
	}
	switch p.Revision {
	case 0, 4:
		return setupR4(p, fileID)
	case 6:
		return setupR6(p)
	}
	return nil, nil, fmt.Errorf("%w: cannot write revision %d", ErrUnsupportedEncryption, p.Revision)
}

func setupR4(p Params, fileID []byte) (*raw.DictObj, *Handler, error) {
	o := ownerEntry([]byte(p.OwnerPassword), []byte(p.UserPassword), 16, 4)
	key := computeKey([]byte(p.UserPassword), o, p.Permissions, fileID, 16, 4, true)
	u := userEntry(key, fileID, 4)
	dict := raw.Dict().
		Set("Filter", raw.Name("Standard")).
		Set("V", raw.Int(4)).
		Set("R", raw.Int(4)).
		Set("Length", raw.Int(128)).
		Set("O", raw.HexStr(o)).
		Set("U", raw.HexStr(u)).
		Set("P", raw.Int(int64(p.Permissions))).
		Set("CF", raw.Dict().Set("StdCF", raw.Dict().
			Set("CFM", raw.Name("AESV2")).
			Set("AuthEvent", raw.Name("DocOpen")).
			Set("Length", raw.Int(16)))).
		Set("StmF", raw.Name("StdCF")).
		Set("StrF", raw.Name("StdCF"))
	return dict, &Handler{r: 4, key: key, stream: methodAESV2, str: methodAESV2, encryptMetadata: true}, nil
}

func setupR6(p Params) (*raw.DictObj, *Handler, error) {
	random := make([]byte, 32+4*8+4)
	if _, err := rand.Read(random); err != nil {
		return nil, nil, err
	}
	key := random[:32]
	uvs, uks, ovs, oks := random[32:40], random[40:48], random[48:56], random[56:64]

	u := append(append(hardenedHash([]byte(p.UserPassword), uvs, nil, 6), uvs...), uks...)
	ue, err := wrapKey(hardenedHash([]byte(p.UserPassword), uks, nil, 6), key)
	if err != nil {
		return nil, nil, err
	}
	o := append(append(hardenedHash([]byte(p.OwnerPassword), ovs, u, 6), ovs...), oks...)
	oe, err := wrapKey(hardenedHash([]byte(p.OwnerPassword), oks, u, 6), key)
	if err != nil {
		return nil, nil, err
	}
	perms := make([]byte, 16)
	binary.LittleEndian.PutUint32(perms, uint32(p.Permissions))
	copy(perms[4:], []byte{0xFF, 0xFF, 0xFF, 0xFF, 'T', 'a', 'd', 'b'})
	copy(perms[12:], random[64:68])
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	block.Encrypt(perms, perms)

	dict := raw.Dict().
		Set("Filter", raw.Name("Standard")).
		Set("V", raw.Int(5)).
		Set("R", raw.Int(6)).
		Set("Length", raw.Int(256)).
		Set("O", raw.HexStr(o)).
		Set("U", raw.HexStr(u)).
		Set("OE", raw.HexStr(oe)).
		Set("UE", raw.HexStr(ue)).
		Set("Perms", raw.HexStr(perms)).
		Set("P", raw.Int(int64(p.Permissions))).
		Set("CF", raw.Dict().Set("StdCF", raw.Dict().
			Set("CFM", raw.Name("AESV3")).
			Set("AuthEvent", raw.Name("DocOpen")).
			Set("Length", raw.Int(32)))).
		Set("StmF", raw.Name("StdCF")).
		Set("StrF", raw.Name("StdCF"))
	return dict, &Handler{r: 6, key: append([]byte(nil), key...), stream: methodAESV3, str: methodAESV3, encryptMetadata: true}, nil
}

// FromTrailer builds a handler from a trailer, returning (nil, nil) when the
// document is not encrypted.
func FromTrailer(trailer, encrypt *raw.DictObj, password string) (*Handler, error) {
	if encrypt == nil {
		return nil, nil
	}
	var id []byte
	if ids, ok := trailer.Array("ID"); ok && ids.Len() > 0 {
		if s, ok := ids.Items[0].(raw.StringObj); ok {
			id = s.Bytes
		}
	}
	return New(encrypt, id, password)
}
