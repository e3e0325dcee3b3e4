package kvfs

import "os"

// ParseMode converts a stream open mode ("r", "rb", "r+", "w", "wb+", "a",
// "ab+" and so on) into os.OpenFile flags. The "b" and "t" modifiers are
// accepted and ignored. Any other mode fails with ErrInvalidArgument.
//
//	r   O_RDONLY                    r+  O_RDWR
//	w   O_WRONLY|O_CREATE|O_TRUNC   w+  O_RDWR|O_CREATE|O_TRUNC
//	a   O_WRONLY|O_CREATE|O_APPEND  a+  O_RDWR|O_CREATE|O_APPEND
func ParseMode(mode string) (int, error) {
	if mode == "" {
		return 0, ErrInvalidArgument
	}

	plus := false
	for _, c := range mode[1:] {
		switch c {
		case 'b', 't':
		case '+':
			if plus {
				return 0, ErrInvalidArgument
			}
			plus = true
		default:
			return 0, ErrInvalidArgument
		}
	}

	var flag int
	switch mode[0] {
	case 'r':
		flag = os.O_RDONLY
	case 'w':
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case 'a':
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return 0, ErrInvalidArgument
	}
	if plus {
		flag = flag&^os.O_WRONLY | os.O_RDWR
	}
	return flag, nil
}
